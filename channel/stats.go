package channel

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds always-on channel statistics tracked with atomic operations.
// Prometheus export is separate and opt-in; see WithMetrics.
type Stats struct {
	published    atomic.Uint64
	consumed     atomic.Uint64
	reservations atomic.Uint64
	waits        atomic.Uint64
}

// Snapshot is a point-in-time copy of channel statistics.
type Snapshot struct {
	Published    uint64
	Consumed     uint64
	Reservations uint64
	Waits        uint64
}

// Snapshot returns a point-in-time copy of the statistics.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Published:    s.published.Load(),
		Consumed:     s.consumed.Load(),
		Reservations: s.reservations.Load(),
		Waits:        s.waits.Load(),
	}
}

// channelMetrics holds the per-channel labeled Prometheus collectors.
// Nil unless WithMetrics was supplied.
type channelMetrics struct {
	published        prometheus.Counter
	consumed         prometheus.Counter
	depth            prometheus.Gauge
	producersWaiting prometheus.Gauge
	terminationState prometheus.Gauge
}
