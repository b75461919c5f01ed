package bot

import (
	"testing"
	"time"
)

func TestSessionFlow(t *testing.T) {
	tr := newSessionTracker()

	if _, ok := tr.Get("u1"); ok {
		t.Fatal("no session should exist before Begin")
	}

	tr.Begin("u1")
	sess, ok := tr.Get("u1")
	if !ok || sess.State != stateAwaitingUsername {
		t.Fatalf("fresh session should await username, got %v, %v", sess, ok)
	}

	sess.Username = "alice"
	sess.State = stateAwaitingPassword
	sess, _ = tr.Get("u1")
	if sess.State != stateAwaitingPassword || sess.Username != "alice" {
		t.Error("session mutations should be visible through Get")
	}

	tr.End("u1")
	if _, ok := tr.Get("u1"); ok {
		t.Error("session should be gone after End")
	}
}

func TestSessionsAreScopedPerUser(t *testing.T) {
	tr := newSessionTracker()
	tr.Begin("u1")

	if _, ok := tr.Get("u2"); ok {
		t.Error("u1's session must not leak to u2")
	}
}

func TestSessionExpiry(t *testing.T) {
	tr := newSessionTracker()
	tr.Begin("u1")

	sess, _ := tr.Get("u1")
	sess.Started = time.Now().Add(-sessionTTL - time.Minute)

	if _, ok := tr.Get("u1"); ok {
		t.Error("stale session should expire")
	}
}

func TestBeginRestartsFlow(t *testing.T) {
	tr := newSessionTracker()

	tr.Begin("u1")
	sess, _ := tr.Get("u1")
	sess.Username = "alice"
	sess.State = stateAwaitingPassword

	tr.Begin("u1")
	sess, _ = tr.Get("u1")
	if sess.State != stateAwaitingUsername || sess.Username != "" {
		t.Error("Begin should reset an in-progress flow")
	}
}
