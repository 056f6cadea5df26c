// Package metric provides Prometheus metrics registration for the flow
// runtime.
//
// # Overview
//
// A MetricsRegistry wraps a private prometheus.Registry with duplicate
// detection keyed on (component, metric) and carries the always-registered
// core runtime metrics:
//
//   - flow_channel_published_total / flow_channel_consumed_total
//   - flow_channel_depth, flow_channel_producers_waiting
//   - flow_channel_termination_state
//   - flow_routine_active, flow_routine_invocations_total,
//     flow_routine_failures_total
//
// Channels and the scheduler are observable without any registry: they keep
// always-on atomic statistics. Prometheus export is opt-in via functional
// options (channel.WithMetrics, scheduler.WithMetrics) following the
// dual-tracking pattern used across the repository.
//
// # Usage
//
//	registry := metric.NewMetricsRegistry()
//	ch, err := channel.GetOrCreate[int](reg, "ints",
//	    channel.WithMetrics[int](registry))
//	...
//	http.Handle("/metrics", registry.Handler())
//
// Component-specific collectors register through the MetricsRegistrar
// interface; duplicate names within a component are rejected with an
// invalid-class error rather than panicking.
package metric
