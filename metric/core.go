package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all runtime-level metrics (not pipeline-specific)
type Metrics struct {
	// Channel metrics
	MessagesPublished *prometheus.CounterVec
	MessagesConsumed  *prometheus.CounterVec
	ChannelDepth      *prometheus.GaugeVec
	ProducersWaiting  *prometheus.GaugeVec
	TerminationState  *prometheus.GaugeVec

	// Routine metrics
	RoutinesActive     prometheus.Gauge
	RoutineInvocations *prometheus.CounterVec
	RoutineFailures    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all runtime metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flow",
				Subsystem: "channel",
				Name:      "published_total",
				Help:      "Total number of messages committed to a channel",
			},
			[]string{"channel"},
		),

		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flow",
				Subsystem: "channel",
				Name:      "consumed_total",
				Help:      "Total number of messages consumed from a channel",
			},
			[]string{"channel"},
		),

		ChannelDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flow",
				Subsystem: "channel",
				Name:      "depth",
				Help:      "Committed messages not yet consumed by the slowest subscriber",
			},
			[]string{"channel"},
		),

		ProducersWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flow",
				Subsystem: "channel",
				Name:      "producers_waiting",
				Help:      "Producers suspended waiting for ring space",
			},
			[]string{"channel"},
		),

		TerminationState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flow",
				Subsystem: "channel",
				Name:      "termination_state",
				Help:      "Termination state (0=running, 1=consumer_initialized, 2=publisher_received, 3=consumer_finalized)",
			},
			[]string{"channel"},
		),

		RoutinesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "flow",
				Subsystem: "routine",
				Name:      "active",
				Help:      "Routines currently spinning",
			},
		),

		RoutineInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flow",
				Subsystem: "routine",
				Name:      "invocations_total",
				Help:      "Total user callable invocations",
			},
			[]string{"kind"},
		),

		RoutineFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flow",
				Subsystem: "routine",
				Name:      "failures_total",
				Help:      "Total user callable failures",
			},
			[]string{"kind"},
		),
	}
}

// collectors returns every core metric for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesPublished,
		m.MessagesConsumed,
		m.ChannelDepth,
		m.ProducersWaiting,
		m.TerminationState,
		m.RoutinesActive,
		m.RoutineInvocations,
		m.RoutineFailures,
	}
}
