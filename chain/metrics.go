package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks subscription health
type Metrics struct {
	// State reports the current connection state as its numeric code
	State prometheus.Gauge
	// ReconnectsTotal counts subscription re-establishments after the first
	ReconnectsTotal prometheus.Counter
	// ConnectFailuresTotal counts failed dial or subscribe attempts
	ConnectFailuresTotal prometheus.Counter
	// LogsReceivedTotal counts raw logs delivered by the subscription
	LogsReceivedTotal prometheus.Counter
}

// NewMetrics creates subscription metrics registered on reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected, 1=connecting, 2=subscribed)",
		}),
		ReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnects_total",
			Help:      "Number of subscription re-establishments after the initial connection",
		}),
		ConnectFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_failures_total",
			Help:      "Number of failed dial or subscribe attempts",
		}),
		LogsReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logs_received_total",
			Help:      "Number of raw contract logs received",
		}),
	}
}
