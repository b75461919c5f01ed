package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lmswatch/internal/core"
	"lmswatch/internal/events"
	"lmswatch/internal/portal"
	"lmswatch/internal/store"
)

type fakeSource struct {
	mu      sync.Mutex
	entries map[string][]events.RawEntry // keyed by portal username
	fail    map[string]error
}

func (f *fakeSource) FetchEvents(ctx context.Context, username, password string) ([]events.RawEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[username]; err != nil {
		return nil, err
	}
	return f.entries[username], nil
}

type fakeStore struct {
	subs []store.Subscriber
}

func (f *fakeStore) GetAll(ctx context.Context) ([]store.Subscriber, error) {
	return f.subs, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (store.Subscriber, error) {
	for _, s := range f.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return store.Subscriber{}, store.ErrNotRegistered
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered map[string][]events.Event
	fail      bool
}

func (f *fakeNotifier) Deliver(ctx context.Context, subscriberID string, evts []events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("delivery failed")
	}
	if f.delivered == nil {
		f.delivered = make(map[string][]events.Event)
	}
	f.delivered[subscriberID] = append(f.delivered[subscriberID], evts...)
	return nil
}

func (f *fakeNotifier) deliveredTo(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered[id])
}

func testConfig() Config {
	return Config{
		InitialDelay:    time.Millisecond,
		Interval:        time.Hour,
		FetchTimeout:    time.Second,
		MaxConcurrent:   2,
		ViewWindowWeeks: 4,
	}
}

func nearEntry(title string) events.RawEntry {
	return events.RawEntry{
		DateText:  time.Now().AddDate(0, 0, 3).Format("2 January 2006"),
		TitleText: title,
	}
}

func TestCheckAllNotifiesNewEvents(t *testing.T) {
	source := &fakeSource{entries: map[string][]events.RawEntry{
		"alice": {nearEntry("Assignment 1"), nearEntry("Quiz 1")},
	}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{}
	detector := events.NewDetector()

	p := New(source, subs, notifier, detector, core.NewLogger(), testConfig())

	p.CheckAll(context.Background())
	if got := notifier.deliveredTo("u1"); got != 2 {
		t.Fatalf("first cycle delivered %d events, want 2", got)
	}

	// An identical second cycle is quiet.
	p.CheckAll(context.Background())
	if got := notifier.deliveredTo("u1"); got != 2 {
		t.Fatalf("second cycle should deliver nothing more, total %d", got)
	}
}

func TestCheckAllIsolatesFailures(t *testing.T) {
	source := &fakeSource{
		entries: map[string][]events.RawEntry{
			"bob": {nearEntry("Assignment 1")},
		},
		fail: map[string]error{
			"alice": portal.ErrFetchFailed,
		},
	}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
		{ID: "u2", Username: "bob", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{}
	detector := events.NewDetector()

	p := New(source, subs, notifier, detector, core.NewLogger(), testConfig())
	p.CheckAll(context.Background())

	if got := notifier.deliveredTo("u2"); got != 1 {
		t.Errorf("u2 should still be notified despite u1's failure, got %d", got)
	}
	if got := notifier.deliveredTo("u1"); got != 0 {
		t.Errorf("u1 should receive nothing, got %d", got)
	}

	// The failed subscriber's seen-set must be untouched so the events are
	// reported once the fetch recovers.
	if n := detector.SeenCount("u1"); n != 0 {
		t.Errorf("failed poll must not touch seen-set, got %d identities", n)
	}

	source.mu.Lock()
	delete(source.fail, "alice")
	source.entries["alice"] = []events.RawEntry{nearEntry("Quiz 1")}
	source.mu.Unlock()

	p.CheckAll(context.Background())
	if got := notifier.deliveredTo("u1"); got != 1 {
		t.Errorf("u1 should be notified after recovery, got %d", got)
	}
}

func TestCheckNow(t *testing.T) {
	source := &fakeSource{entries: map[string][]events.RawEntry{
		"alice": {nearEntry("Assignment 1")},
	}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{}

	p := New(source, subs, notifier, events.NewDetector(), core.NewLogger(), testConfig())

	n, err := p.CheckNow(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CheckNow = %d new events, want 1", n)
	}

	n, err = p.CheckNow(context.Background(), "u1")
	if err != nil || n != 0 {
		t.Errorf("repeat CheckNow = %d, %v, want 0, nil", n, err)
	}
}

func TestCheckNowUnknownSubscriber(t *testing.T) {
	p := New(&fakeSource{}, &fakeStore{}, &fakeNotifier{},
		events.NewDetector(), core.NewLogger(), testConfig())

	if _, err := p.CheckNow(context.Background(), "ghost"); !errors.Is(err, store.ErrNotRegistered) {
		t.Errorf("CheckNow(ghost) = %v, want ErrNotRegistered", err)
	}
}

func TestCheckNowSurfacesFetchFailure(t *testing.T) {
	source := &fakeSource{fail: map[string]error{"alice": portal.ErrAuthFailed}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}

	p := New(source, subs, &fakeNotifier{}, events.NewDetector(), core.NewLogger(), testConfig())

	if _, err := p.CheckNow(context.Background(), "u1"); !errors.Is(err, portal.ErrAuthFailed) {
		t.Errorf("CheckNow = %v, want ErrAuthFailed to surface", err)
	}
}

func TestUpcomingBypassesDetector(t *testing.T) {
	source := &fakeSource{entries: map[string][]events.RawEntry{
		"alice": {nearEntry("Assignment 1"), nearEntry("Quiz 1")},
	}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{}
	detector := events.NewDetector()

	p := New(source, subs, notifier, detector, core.NewLogger(), testConfig())

	// Warm the seen-set, then confirm the view-all query still shows all.
	p.CheckAll(context.Background())

	evts, err := p.Upcoming(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Errorf("Upcoming should include already-seen events, got %d", len(evts))
	}
	if n := detector.SeenCount("u1"); n != 2 {
		t.Errorf("Upcoming must not mutate the seen-set, got %d identities", n)
	}
}

func TestDeliveryFailureIsNotRetried(t *testing.T) {
	source := &fakeSource{entries: map[string][]events.RawEntry{
		"alice": {nearEntry("Assignment 1")},
	}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{fail: true}

	p := New(source, subs, notifier, events.NewDetector(), core.NewLogger(), testConfig())

	// A failed delivery is logged, not surfaced, and the seen-set still
	// advances: the event was observed even if the message was lost.
	n, err := p.CheckNow(context.Background(), "u1")
	if err != nil {
		t.Fatalf("delivery failure should not surface as poll failure: %v", err)
	}
	if n != 1 {
		t.Errorf("CheckNow = %d, want 1", n)
	}
}

func TestStartStop(t *testing.T) {
	source := &fakeSource{entries: map[string][]events.RawEntry{
		"alice": {nearEntry("Assignment 1")},
	}}
	subs := &fakeStore{subs: []store.Subscriber{
		{ID: "u1", Username: "alice", Password: "pw", WindowWeeks: 2},
	}}
	notifier := &fakeNotifier{}

	p := New(source, subs, notifier, events.NewDetector(), core.NewLogger(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)

	// Wait for the initial-delay cycle to land.
	deadline := time.After(2 * time.Second)
	for notifier.deliveredTo("u1") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial poll cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.Stop()
}
