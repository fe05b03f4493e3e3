package events

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for event dispatch
type Metrics struct {
	// Gauges (current values)
	QueueDepth prometheus.Gauge

	// Counters (cumulative values)
	EventsDecodedTotal *prometheus.CounterVec
	EventsAppliedTotal *prometheus.CounterVec
	EventsFailedTotal  *prometheus.CounterVec
	EventsSkippedTotal *prometheus.CounterVec
	UnknownEventsTotal prometheus.Counter
	HandlerPanicsTotal prometheus.Counter

	// Histograms (distributions)
	ApplyDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all dispatch metrics. A nil registerer
// uses the default registry.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "indexer"
	}
	if subsystem == "" {
		subsystem = "dispatch"
	}

	factory := promauto.With(reg)

	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current number of decoded events waiting for a worker",
		}),

		EventsDecodedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_decoded_total",
			Help:      "Total number of logs decoded into recognized events",
		}, []string{"event"}),
		EventsAppliedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_applied_total",
			Help:      "Total number of events projected into the store",
		}, []string{"event"}),
		EventsFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_failed_total",
			Help:      "Total number of events dropped by a handler failure",
		}, []string{"event"}),
		EventsSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_skipped_total",
			Help:      "Total number of events skipped (removed logs, missing preconditions)",
		}, []string{"event"}),
		UnknownEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unknown_events_total",
			Help:      "Total number of logs with an unrecognized signature topic",
		}),
		HandlerPanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_panics_total",
			Help:      "Total number of panics recovered inside projection handlers",
		}),

		ApplyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "apply_duration_seconds",
			Help:      "Projection handler duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"event"}),
	}
}

// RecordDecoded increments the decoded events counter
func (m *Metrics) RecordDecoded(kind Kind) {
	m.EventsDecodedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordApplied increments the applied events counter
func (m *Metrics) RecordApplied(kind Kind) {
	m.EventsAppliedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordFailed increments the failed events counter
func (m *Metrics) RecordFailed(kind Kind) {
	m.EventsFailedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordSkipped increments the skipped events counter
func (m *Metrics) RecordSkipped(kind Kind) {
	m.EventsSkippedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordUnknown increments the unknown events counter
func (m *Metrics) RecordUnknown() {
	m.UnknownEventsTotal.Inc()
}

// RecordPanic increments the recovered panics counter
func (m *Metrics) RecordPanic() {
	m.HandlerPanicsTotal.Inc()
}

// ObserveApply records the time a handler took to project an event
func (m *Metrics) ObserveApply(kind Kind, duration time.Duration) {
	m.ApplyDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// SetQueueDepth updates the queue depth gauge
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}
