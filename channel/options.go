package channel

import (
	"log/slog"

	"github.com/RoboSDK/flow/metric"
)

// Defaults applied when no option overrides them.
const (
	// DefaultCapacity is the ring capacity. Must be a power of two.
	DefaultCapacity = 64
	// DefaultBatchSize is the reservation batch handed to a producer by
	// RequestPermissionToPublish.
	DefaultBatchSize = 8
)

// DeliveryMode selects how a channel distributes messages to subscribers.
type DeliveryMode int

const (
	// DeliveryFanOut delivers every message to every subscriber exactly once.
	DeliveryFanOut DeliveryMode = iota
	// DeliveryLoadBalanced delivers every message to exactly one subscriber.
	DeliveryLoadBalanced
)

// String returns the string representation of the delivery mode
func (m DeliveryMode) String() string {
	switch m {
	case DeliveryFanOut:
		return "fan-out"
	case DeliveryLoadBalanced:
		return "load-balanced"
	default:
		return "unknown"
	}
}

// Option configures a Channel at creation time.
type Option[T any] func(*Channel[T])

// WithCapacity sets the ring capacity. The value must be a power of two;
// creation fails otherwise.
func WithCapacity[T any](capacity int) Option[T] {
	return func(c *Channel[T]) {
		c.capacity = uint64(capacity)
	}
}

// WithBatchSize sets the default reservation batch for producers.
func WithBatchSize[T any](n int) Option[T] {
	return func(c *Channel[T]) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithDelivery selects fan-out (default) or load-balanced delivery.
func WithDelivery[T any](mode DeliveryMode) Option[T] {
	return func(c *Channel[T]) {
		c.delivery = mode
	}
}

// WithLogger sets the channel's logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Channel[T]) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus export through the registry's core metrics,
// labeled with the channel name. Statistics are always collected; this option
// only adds the external view.
func WithMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(c *Channel[T]) {
		if registry == nil {
			return
		}
		core := registry.CoreMetrics()
		c.metrics = &channelMetrics{
			published:        core.MessagesPublished.WithLabelValues(c.name),
			consumed:         core.MessagesConsumed.WithLabelValues(c.name),
			depth:            core.ChannelDepth.WithLabelValues(c.name),
			producersWaiting: core.ProducersWaiting.WithLabelValues(c.name),
			terminationState: core.TerminationState.WithLabelValues(c.name),
		}
	}
}
