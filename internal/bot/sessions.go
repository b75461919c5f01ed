package bot

import (
	"sync"
	"time"
)

// regState tracks where a user is in the registration dialogue.
type regState int

const (
	stateAwaitingUsername regState = iota
	stateAwaitingPassword
)

const sessionTTL = 5 * time.Minute

// regSession is one user's in-progress registration flow.
type regSession struct {
	State    regState
	Username string
	Started  time.Time
}

// sessionTracker holds in-progress registration flows, scoped per user and
// expired after a timeout. It replaces ad hoc global "registration in
// progress" flags so flows cannot leak across users.
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*regSession
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*regSession)}
}

// Begin starts (or restarts) a registration flow for the user.
func (t *sessionTracker) Begin(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[userID] = &regSession{
		State:   stateAwaitingUsername,
		Started: time.Now(),
	}
}

// Get returns the user's active session, lazily expiring stale ones.
func (t *sessionTracker) Get(userID string) (*regSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		return nil, false
	}
	if time.Since(s.Started) > sessionTTL {
		delete(t.sessions, userID)
		return nil, false
	}
	return s, true
}

// End discards the user's session.
func (t *sessionTracker) End(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, userID)
}
