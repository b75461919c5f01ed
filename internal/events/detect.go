package events

import (
	"sync"
	"time"
)

// Detector tracks which events each subscriber has already been told about
// and computes the set of new, in-window events on each poll.
//
// Seen-sets live in process memory only. On restart every subscriber starts
// from an empty set, so the first poll after a restart reports the full
// current event list again.
type Detector struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{
		seen: make(map[string]map[string]struct{}),
	}
}

// Diff returns the events that are new for the subscriber and fall inside
// the look-ahead window, preserving source order. As a side effect the
// subscriber's seen-set is replaced wholesale with the identities of all
// current events, even when nothing new was found. An event that disappears
// from the source and later reappears is therefore reported as new again.
//
// Events whose date failed to parse always pass the window filter.
func (d *Detector) Diff(subscriberID string, evts []Event, windowWeeks int, now time.Time) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.seen[subscriberID]

	current := make(map[string]struct{}, len(evts))
	start, end := window(now, windowWeeks)

	var fresh []Event
	for _, ev := range evts {
		id := ev.Identity()
		current[id] = struct{}{}

		if _, ok := prev[id]; ok {
			continue
		}
		if !inWindow(ev, start, end) {
			continue
		}
		fresh = append(fresh, ev)
	}

	d.seen[subscriberID] = current
	return fresh
}

// Upcoming filters events to the look-ahead window without touching any
// seen-set and without new/old filtering. It backs the manual "view all"
// query, which must always show the full current in-window list.
func Upcoming(evts []Event, windowWeeks int, now time.Time) []Event {
	start, end := window(now, windowWeeks)

	out := make([]Event, 0, len(evts))
	for _, ev := range evts {
		if inWindow(ev, start, end) {
			out = append(out, ev)
		}
	}
	return out
}

// Forget drops the subscriber's seen-set, e.g. on unregistration.
func (d *Detector) Forget(subscriberID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, subscriberID)
}

// Reset drops every seen-set.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]map[string]struct{})
}

// SeenCount reports how many event identities are recorded for a subscriber.
func (d *Detector) SeenCount(subscriberID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen[subscriberID])
}

// window computes the [start, end] range for a look-ahead of windowWeeks.
// The start is truncated to the beginning of the day so that events dated
// today are still in-window when the poll runs later in the day.
func window(now time.Time, windowWeeks int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := now.AddDate(0, 0, 7*windowWeeks)
	return start, end
}

func inWindow(ev Event, start, end time.Time) bool {
	if !ev.DateKnown {
		return true
	}
	return !ev.Date.Before(start) && !ev.Date.After(end)
}
