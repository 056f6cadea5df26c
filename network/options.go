package network

import (
	"log/slog"

	"github.com/RoboSDK/flow/channel"
	"github.com/RoboSDK/flow/metric"
	"github.com/RoboSDK/flow/scheduler"
)

// Option configures a Network at materialization time.
type Option func(*Network)

// WithLogger sets the network's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

// WithRegistry supplies a shared channel registry so several networks (or
// low-level registrations) can fan in and out over named channels.
func WithRegistry(registry *channel.Registry) Option {
	return func(n *Network) {
		n.registry = registry
	}
}

// WithPool supplies a shared scheduler pool.
func WithPool(pool *scheduler.Pool) Option {
	return func(n *Network) {
		n.pool = pool
	}
}

// WithMetrics enables Prometheus export for the network's channels and
// routines.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(n *Network) {
		n.metrics = registry
	}
}

// WithChannelCapacity sets the default ring capacity for edge channels.
// The value must be a power of two; creation fails otherwise.
func WithChannelCapacity(capacity int) Option {
	return func(n *Network) {
		n.capacity = capacity
	}
}

// WithBatchSize sets the default reservation batch for edge channels.
func WithBatchSize(size int) Option {
	return func(n *Network) {
		n.batchSize = size
	}
}
