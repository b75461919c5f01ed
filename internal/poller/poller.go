package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lmswatch/internal/core"
	"lmswatch/internal/events"
	"lmswatch/internal/metrics"
	"lmswatch/internal/portal"
	"lmswatch/internal/store"
)

// Source fetches raw calendar entries from the portal for one credential pair.
type Source interface {
	FetchEvents(ctx context.Context, username, password string) ([]events.RawEntry, error)
}

// SubscriberStore provides the registered subscribers to poll.
type SubscriberStore interface {
	GetAll(ctx context.Context) ([]store.Subscriber, error)
	Get(ctx context.Context, id string) (store.Subscriber, error)
}

// Notifier delivers new events to a subscriber.
type Notifier interface {
	Deliver(ctx context.Context, subscriberID string, evts []events.Event) error
}

// Config holds poller timing configuration
type Config struct {
	// InitialDelay postpones the first periodic cycle after Start, giving
	// the chat connection time to settle.
	InitialDelay time.Duration
	Interval     time.Duration
	FetchTimeout time.Duration
	// MaxConcurrent bounds how many subscribers are polled in parallel
	// within one cycle.
	MaxConcurrent int
	// ViewWindowWeeks is the look-ahead used by the manual "view all" query.
	ViewWindowWeeks int
}

// Poller drives periodic poll cycles across all subscribers and serves
// manual per-subscriber triggers.
type Poller struct {
	source   Source
	store    SubscriberStore
	notifier Notifier
	detector *events.Detector
	logger   *core.Logger
	config   Config

	// subLocks serializes polls per subscriber so a manual trigger cannot
	// race an in-flight periodic poll on the same seen-set.
	mu       sync.Mutex
	subLocks map[string]*sync.Mutex

	statusMu  sync.Mutex
	lastCycle time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a poller
func New(source Source, subscribers SubscriberStore, notifier Notifier,
	detector *events.Detector, logger *core.Logger, config Config) *Poller {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	return &Poller{
		source:   source,
		store:    subscribers,
		notifier: notifier,
		detector: detector,
		logger:   logger,
		config:   config,
		subLocks: make(map[string]*sync.Mutex),
		stopChan: make(chan struct{}),
	}
}

// SetNotifier wires the notifier after construction. The bot both issues
// manual triggers against the poller and receives its notifications, so one
// of the two references has to be bound late. Must be called before Start.
func (p *Poller) SetNotifier(n Notifier) {
	p.notifier = n
}

// Start begins the periodic poll loop
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting poller",
		"initial_delay", p.config.InitialDelay,
		"interval", p.config.Interval)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop gracefully stops the poller and waits for in-flight polls
func (p *Poller) Stop() {
	p.logger.Info("Stopping poller")
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	// Hold off the first cycle until the platform connection has settled.
	select {
	case <-time.After(p.config.InitialDelay):
	case <-ctx.Done():
		return
	case <-p.stopChan:
		return
	}

	p.CheckAll(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller context cancelled")
			return
		case <-p.stopChan:
			p.logger.Info("Poller stop signal received")
			return
		case <-ticker.C:
			p.CheckAll(ctx)
		}
	}
}

// CheckAll polls every registered subscriber once. A failure for one
// subscriber never aborts the rest of the cycle.
func (p *Poller) CheckAll(ctx context.Context) {
	start := time.Now()
	metrics.PollCycles.Inc()

	subs, err := p.store.GetAll(ctx)
	if err != nil {
		p.logger.Error("Failed to load subscribers for poll cycle", "error", err)
		return
	}

	if len(subs) == 0 {
		p.logger.Info("No subscribers to poll")
		return
	}

	p.logger.Info("Starting poll cycle", "subscribers", len(subs))

	sem := semaphore.NewWeighted(int64(p.config.MaxConcurrent))
	var wg sync.WaitGroup

	for _, sub := range subs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(sub store.Subscriber) {
			defer wg.Done()
			defer sem.Release(1)

			if _, err := p.pollOne(ctx, sub); err != nil {
				p.logger.Error("Subscriber poll failed",
					"subscriber_id", sub.ID, "error", err)
			}
		}(sub)
	}

	wg.Wait()

	p.statusMu.Lock()
	p.lastCycle = time.Now()
	p.statusMu.Unlock()

	metrics.ObserveCycleDuration(start)
	p.logger.Info("Poll cycle completed", "duration", time.Since(start))
}

// CheckNow polls a single subscriber immediately and returns the number of
// new events that were delivered. Unlike the periodic cycle, the error is
// returned so the triggering caller can surface it.
func (p *Poller) CheckNow(ctx context.Context, subscriberID string) (int, error) {
	sub, err := p.store.Get(ctx, subscriberID)
	if err != nil {
		return 0, err
	}
	return p.pollOne(ctx, sub)
}

// pollOne runs one fetch-normalize-diff-notify pass for a subscriber,
// serialized against any other in-flight poll for the same subscriber.
// On fetch failure the seen-set is left untouched.
func (p *Poller) pollOne(ctx context.Context, sub store.Subscriber) (int, error) {
	lock := p.lockFor(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	raw, err := p.source.FetchEvents(fetchCtx, sub.Username, sub.Password)
	if err != nil {
		switch {
		case errors.Is(err, portal.ErrAuthFailed):
			metrics.SubscriberPolls.WithLabelValues(metrics.ResultAuthFailed).Inc()
		default:
			metrics.SubscriberPolls.WithLabelValues(metrics.ResultFetchFail).Inc()
		}
		return 0, fmt.Errorf("fetch for subscriber %s: %w", sub.ID, err)
	}

	metrics.SubscriberPolls.WithLabelValues(metrics.ResultOK).Inc()

	normalized := events.Normalize(raw)
	fresh := p.detector.Diff(sub.ID, normalized, sub.WindowWeeks, time.Now())

	if len(fresh) == 0 {
		return 0, nil
	}

	if err := p.notifier.Deliver(ctx, sub.ID, fresh); err != nil {
		metrics.DeliveryFailures.Inc()
		p.logger.Error("Failed to deliver notification",
			"subscriber_id", sub.ID, "events", len(fresh), "error", err)
		return len(fresh), nil
	}

	metrics.EventsNotified.Add(float64(len(fresh)))
	p.logger.Info("Delivered new events", "subscriber_id", sub.ID, "events", len(fresh))
	return len(fresh), nil
}

// Upcoming fetches and returns the subscriber's full current in-window event
// list. It bypasses the change detector entirely: the seen-set is neither
// read nor written, and previously reported events are included.
func (p *Poller) Upcoming(ctx context.Context, subscriberID string) ([]events.Event, error) {
	sub, err := p.store.Get(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	raw, err := p.source.FetchEvents(fetchCtx, sub.Username, sub.Password)
	if err != nil {
		return nil, fmt.Errorf("fetch for subscriber %s: %w", sub.ID, err)
	}

	return events.Upcoming(events.Normalize(raw), p.config.ViewWindowWeeks, time.Now()), nil
}

// LastCycle reports when the most recent poll cycle completed.
func (p *Poller) LastCycle() time.Time {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.lastCycle
}

func (p *Poller) lockFor(subscriberID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.subLocks[subscriberID]
	if !ok {
		lock = &sync.Mutex{}
		p.subLocks[subscriberID] = lock
	}
	return lock
}
