package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus instruments.
//
// All increment helpers are nil-receiver safe so components can run
// without metrics in tests.
type Metrics struct {
	PollTotal    prometheus.Counter
	PollFailures prometheus.Counter
	PollDuration prometheus.Histogram

	PushReceived   prometheus.Counter
	PushDropped    prometheus.Counter
	PushUnroutable prometheus.Counter
	PushReconnects prometheus.Counter

	EntityUpdates prometheus.Counter
}

// New creates the bridge's metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "poll",
			Name:      "fetches_total",
			Help:      "Completed poll fetches against the SensorThings server.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "poll",
			Name:      "fetch_failures_total",
			Help:      "Poll fetches that failed; the previous snapshot was kept.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stabridge",
			Subsystem: "poll",
			Name:      "fetch_duration_seconds",
			Help:      "Wall-clock duration of poll fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		PushReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "push",
			Name:      "messages_received_total",
			Help:      "MQTT observation messages received.",
		}),
		PushDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "push",
			Name:      "messages_dropped_total",
			Help:      "Messages discarded because the payload could not be decoded.",
		}),
		PushUnroutable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "push",
			Name:      "messages_unroutable_total",
			Help:      "Decoded messages with no subscribed entity for the stream.",
		}),
		PushReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "push",
			Name:      "reconnects_total",
			Help:      "Operator-requested push channel reconnects.",
		}),
		EntityUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stabridge",
			Subsystem: "entity",
			Name:      "state_updates_total",
			Help:      "Entity state changes from either channel.",
		}),
	}

	reg.MustRegister(
		m.PollTotal, m.PollFailures, m.PollDuration,
		m.PushReceived, m.PushDropped, m.PushUnroutable, m.PushReconnects,
		m.EntityUpdates,
	)

	return m
}

func (m *Metrics) IncPollTotal() {
	if m != nil {
		m.PollTotal.Inc()
	}
}

func (m *Metrics) IncPollFailures() {
	if m != nil {
		m.PollFailures.Inc()
	}
}

func (m *Metrics) ObservePollDuration(seconds float64) {
	if m != nil {
		m.PollDuration.Observe(seconds)
	}
}

func (m *Metrics) IncPushReceived() {
	if m != nil {
		m.PushReceived.Inc()
	}
}

func (m *Metrics) IncPushDropped() {
	if m != nil {
		m.PushDropped.Inc()
	}
}

func (m *Metrics) IncPushUnroutable() {
	if m != nil {
		m.PushUnroutable.Inc()
	}
}

func (m *Metrics) IncPushReconnects() {
	if m != nil {
		m.PushReconnects.Inc()
	}
}

func (m *Metrics) IncEntityUpdates() {
	if m != nil {
		m.EntityUpdates.Inc()
	}
}
