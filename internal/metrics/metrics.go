package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lmswatch_poll_cycles_total",
		Help: "Total poll cycles run",
	})
	SubscriberPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lmswatch_subscriber_polls_total",
		Help: "Per-subscriber poll outcomes",
	}, []string{"result"})
	EventsNotified = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lmswatch_events_notified_total",
		Help: "Total new events delivered to subscribers",
	})
	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lmswatch_delivery_failures_total",
		Help: "Total failed notification deliveries",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lmswatch_cycle_duration_seconds",
		Help:    "Poll cycle duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// Poll outcome labels for SubscriberPolls.
const (
	ResultOK         = "ok"
	ResultAuthFailed = "auth_failed"
	ResultFetchFail  = "fetch_failed"
)

func init() {
	prometheus.MustRegister(PollCycles, SubscriberPolls, EventsNotified, DeliveryFailures, CycleDuration)
}

// ObserveCycleDuration records a cycle duration
func ObserveCycleDuration(start time.Time) {
	CycleDuration.Observe(time.Since(start).Seconds())
}
