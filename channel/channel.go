// Package channel provides the bounded, typed, multi-producer/multi-consumer
// queue connecting adjacent pipeline nodes.
//
// A Channel is a ring of power-of-two capacity with sequence-based flow
// control: producers reserve contiguous sequence numbers against a shared
// tail cursor, populate slots, and commit them through a separately tracked
// commit cursor so consumers only ever observe fully published messages in
// order. Each subscriber owns a cursor; producers suspend while
// tail - min(cursors) would exceed capacity.
//
// Termination is a four-state monotonic handshake driven from the consumer
// side; see TerminationState.
package channel

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
)

// TerminationState is the channel's shutdown phase. States only ever
// increase.
type TerminationState int32

const (
	// Running is the steady state: producers publish, consumers consume.
	Running TerminationState = iota
	// ConsumerInitialized is set by the consumer side when its routine
	// decides to quit. Batch reservations are refused from here on and all
	// suspended producers are woken so they can observe it.
	ConsumerInitialized
	// PublisherReceived is set by the producer side after observing
	// ConsumerInitialized and flushing its own queue.
	PublisherReceived
	// ConsumerFinalized is set by the consumer side once every in-flight
	// slot has been drained.
	ConsumerFinalized
)

// String returns the string representation of the termination state
func (s TerminationState) String() string {
	switch s {
	case Running:
		return "running"
	case ConsumerInitialized:
		return "consumer_initialized"
	case PublisherReceived:
		return "publisher_received"
	case ConsumerFinalized:
		return "consumer_finalized"
	default:
		return "unknown"
	}
}

// subscriberSlot is one consumer cursor. A slot left via Leave stops
// counting toward back-pressure.
type subscriberSlot struct {
	cursor uint64
	active bool
}

// Channel is a bounded multi-producer/multi-consumer ring carrying values of
// type T. Create instances through New or a Registry.
type Channel[T any] struct {
	name      string
	capacity  uint64
	mask      uint64
	batchSize int
	delivery  DeliveryMode
	logger    *slog.Logger

	mu         sync.Mutex
	spaceAvail *sync.Cond
	dataAvail  *sync.Cond

	ring []T
	// tail is the next unreserved sequence; commit is the watermark below
	// which every slot is published. commit <= tail always holds.
	tail   uint64
	commit uint64
	// pending maps a published sequence to its end (seq+1) until the commit
	// cursor passes it, so out-of-order batch publishes become visible in
	// reservation order.
	pending map[uint64]uint64
	// skipped marks reserved sequences returned unfilled through
	// ReleaseReservation. They fold into the commit cursor like published
	// ones but generators step over them, so a failed producer never stalls
	// the commit for its fan-in peers.
	skipped map[uint64]bool

	slots []subscriberSlot
	// lbCount tracks load-balanced subscribers, which all share slot 0.
	lbCount       int
	liveProducers int
	waiting       int

	state atomic.Int32

	stats   Stats
	metrics *channelMetrics
}

// New creates a channel with the given name. The capacity must be a power of
// two.
func New[T any](name string, opts ...Option[T]) (*Channel[T], error) {
	c := &Channel[T]{
		name:      name,
		capacity:  DefaultCapacity,
		batchSize: DefaultBatchSize,
		delivery:  DeliveryFanOut,
		pending:   make(map[uint64]uint64),
		skipped:   make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.capacity == 0 || c.capacity&(c.capacity-1) != 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("capacity %d is not a power of two: %w", c.capacity, errors.ErrInvalidConfig),
			"Channel", "New", "capacity validation")
	}

	c.mask = c.capacity - 1
	c.ring = make([]T, c.capacity)
	c.logger = logging.Default(c.logger).With(slog.String("channel", name))
	c.spaceAvail = sync.NewCond(&c.mu)
	c.dataAvail = sync.NewCond(&c.mu)
	return c, nil
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Capacity returns the ring capacity.
func (c *Channel[T]) Capacity() int { return int(c.capacity) }

// Delivery returns the delivery mode.
func (c *Channel[T]) Delivery() DeliveryMode { return c.delivery }

// Stats returns a snapshot of the always-on statistics.
func (c *Channel[T]) Stats() Snapshot { return c.stats.Snapshot() }

// State returns the current termination state.
func (c *Channel[T]) State() TerminationState {
	return TerminationState(c.state.Load())
}

// Subscribe registers a consumer, allocating it a cursor starting at the
// current producer tail. Subscriptions fail once termination has begun.
func (c *Channel[T]) Subscribe() (*SubscriberToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stateLocked() >= ConsumerInitialized {
		return nil, errors.Wrap(errors.ErrChannelClosed, "Channel", "Subscribe", "cursor allocation")
	}

	if c.delivery == DeliveryLoadBalanced {
		// Load-balanced subscribers share one cursor.
		if len(c.slots) == 0 {
			c.slots = append(c.slots, subscriberSlot{cursor: c.tail, active: true})
		}
		c.lbCount++
		return &SubscriberToken{slot: 0, cursor: c.slots[0].cursor, registered: true}, nil
	}

	c.slots = append(c.slots, subscriberSlot{cursor: c.tail, active: true})
	return &SubscriberToken{slot: len(c.slots) - 1, cursor: c.tail, registered: true}, nil
}

// Leave withdraws a subscriber whose handle was disabled mid-run. When peer
// subscribers remain it deactivates the cursor (so back-pressure no longer
// waits on it) and reports true; the caller exits without touching the
// termination handshake. When this is the last subscriber it reports false
// and keeps the cursor live: the caller must drive the handshake instead.
func (c *Channel[T]) Leave(tok *SubscriberToken) bool {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "leave with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.delivery == DeliveryLoadBalanced {
		if c.lbCount > 1 {
			c.lbCount--
			return true
		}
		return false
	}

	others := 0
	for i := range c.slots {
		if i != tok.slot && c.slots[i].active {
			others++
		}
	}
	if others == 0 {
		return false
	}

	c.slots[tok.slot].active = false
	// The departed cursor may have been the back-pressure minimum.
	c.spaceAvail.Broadcast()
	return true
}

// RegisterProducer registers a producer and returns its token. Registration
// fails once termination has begun.
func (c *Channel[T]) RegisterProducer() (*ProducerToken[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stateLocked() >= ConsumerInitialized {
		return nil, errors.Wrap(errors.ErrChannelClosed, "Channel", "RegisterProducer", "slot allocation")
	}

	c.liveProducers++
	return &ProducerToken[T]{registered: true}, nil
}

// RequestPermissionToPublish reserves up to the channel's batch size of
// contiguous sequence numbers for tok, suspending while the ring is full.
// It returns false once termination has been initialized; all suspended
// producers are woken at that point so they can observe it.
func (c *Channel[T]) RequestPermissionToPublish(tok *ProducerToken[T]) bool {
	return c.requestPermission(tok, c.batchSize, ConsumerInitialized)
}

// RequestPermissionToPublishOne is the single-sequence specialization used
// during the drain phase: it keeps granting through ConsumerInitialized and
// PublisherReceived and refuses only once the consumer has finalized.
func (c *Channel[T]) RequestPermissionToPublishOne(tok *ProducerToken[T]) bool {
	if tok != nil && tok.Reserved() > tok.Pending() {
		// A spare sequence from an earlier grant is still unused.
		return true
	}
	return c.requestPermission(tok, 1, ConsumerFinalized)
}

func (c *Channel[T]) requestPermission(tok *ProducerToken[T], n int, refuseAt TerminationState) bool {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "publish permission requested with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stateLocked() >= refuseAt {
			return false
		}

		if free := c.capacity - (c.tail - c.minCursorLocked()); free > 0 {
			k := uint64(n)
			if k > free {
				k = free
			}
			for s := c.tail; s < c.tail+k; s++ {
				tok.sequences = append(tok.sequences, s)
			}
			c.tail += k
			c.stats.reservations.Add(1)
			return true
		}

		if tok.cancelled != nil && tok.cancelled() {
			return false
		}

		c.waiting++
		c.stats.waits.Add(1)
		c.publishWaitingLocked()
		c.spaceAvail.Wait()
		c.waiting--
		c.publishWaitingLocked()
	}
}

// PublishMessages commits each (sequence, message) pair of the token into
// the ring and releases the reservation. The token must hold exactly one
// message per reserved sequence.
func (c *Channel[T]) PublishMessages(tok *ProducerToken[T]) {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "publish with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}
	if len(tok.messages) != len(tok.sequences) {
		logging.Criticalf(c.logger, "publish with mismatched token: %d messages for %d sequences",
			len(tok.messages), len(tok.sequences))
	}
	if len(tok.sequences) == 0 {
		return
	}

	c.mu.Lock()
	for i, s := range tok.sequences {
		c.ring[s&c.mask] = tok.messages[i]
		c.pending[s] = s + 1
	}
	published := len(tok.sequences)
	tok.sequences = tok.sequences[:0]
	tok.messages = tok.messages[:0]
	c.advanceCommitLocked(published)
	c.mu.Unlock()
}

// PublishOne commits and releases exactly one (sequence, message) pair; the
// oldest of each. Used by the drain-phase trickle.
func (c *Channel[T]) PublishOne(tok *ProducerToken[T]) {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "publish with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}
	if len(tok.sequences) == 0 || len(tok.messages) == 0 {
		logging.Critical(c.logger, "publish one with empty token",
			slog.String("error", errors.ErrTokenEmpty.Error()))
	}

	c.mu.Lock()
	s := tok.sequences[0]
	c.ring[s&c.mask] = tok.messages[0]
	c.pending[s] = s + 1
	tok.sequences = tok.sequences[1:]
	tok.messages = tok.messages[1:]
	c.advanceCommitLocked(1)
	c.mu.Unlock()
}

// ReleaseReservation returns the token's unfilled reserved sequences to the
// channel: every sequence beyond the staged messages is committed as a gap
// that generators step over, and the token is trimmed so a batch publish of
// the staged prefix still satisfies the one-message-per-sequence invariant.
//
// A producer that cannot fill its batch (a failed user callable, a drain cut
// short) must release before abandoning the token; an unaccounted sequence
// would stall the commit cursor forever and with it every fan-in peer.
func (c *Channel[T]) ReleaseReservation(tok *ProducerToken[T]) {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "reservation release with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}

	c.mu.Lock()
	unused := tok.sequences[len(tok.messages):]
	if len(unused) == 0 {
		c.mu.Unlock()
		return
	}
	for _, s := range unused {
		c.skipped[s] = true
		c.pending[s] = s + 1
	}
	released := len(unused)
	tok.sequences = tok.sequences[:len(tok.messages)]
	c.advanceCommitLocked(0)
	c.mu.Unlock()

	c.logger.Debug("reservation released", slog.Int("sequences", released))
}

// NotifyMessageConsumed advances the subscriber's cursor by one and wakes
// producers waiting on the freed space. In load-balanced mode the shared
// cursor already moved when Next claimed the message, so only the token and
// the statistics are updated.
func (c *Channel[T]) NotifyMessageConsumed(tok *SubscriberToken) {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "consume notification with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}

	c.mu.Lock()
	if c.delivery == DeliveryFanOut {
		c.slots[tok.slot].cursor++
	}
	tok.cursor = c.slots[tok.slot].cursor
	c.stats.consumed.Add(1)
	if c.metrics != nil {
		c.metrics.consumed.Inc()
		c.metrics.depth.Set(float64(c.commit - c.minCursorLocked()))
	}
	c.spaceAvail.Broadcast()
	c.mu.Unlock()
}

// HasPending reports whether committed messages remain past the
// subscriber's cursor. The drain phase polls this so no in-flight slot is
// left behind before finalization.
func (c *Channel[T]) HasPending(tok *SubscriberToken) bool {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "pending check with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for cur := c.slots[tok.slot].cursor; cur < c.commit; cur++ {
		if !c.skipped[cur] {
			return true
		}
	}
	return false
}

// IsWaiting reports whether at least one producer is suspended inside a
// publish-permission request.
func (c *Channel[T]) IsWaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting > 0
}

// Depth returns the number of committed messages the slowest subscriber has
// not yet consumed.
func (c *Channel[T]) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.commit - c.minCursorLocked())
}

// InitializeTermination moves the channel to ConsumerInitialized. Called by
// the consumer side when its routine decides to quit. If the channel has no
// live producers left, the handshake skips straight to PublisherReceived.
func (c *Channel[T]) InitializeTermination() {
	c.mu.Lock()
	c.advanceStateLocked(ConsumerInitialized)
	if c.liveProducers == 0 {
		c.advanceStateLocked(PublisherReceived)
	}
	c.spaceAvail.Broadcast()
	c.dataAvail.Broadcast()
	c.mu.Unlock()
}

// ConfirmTermination is called by the producer side after it has observed
// termination and flushed its own queue. The producer counts as gone from
// here on; the last confirmation moves the channel to PublisherReceived, so
// the consumer's drain keeps flushing until every producer has handed over
// its final batch.
func (c *Channel[T]) ConfirmTermination() {
	c.mu.Lock()
	if c.liveProducers > 0 {
		c.liveProducers--
	}
	if c.liveProducers == 0 && c.stateLocked() >= ConsumerInitialized {
		c.advanceStateLocked(PublisherReceived)
	}
	c.spaceAvail.Broadcast()
	c.dataAvail.Broadcast()
	c.mu.Unlock()
}

// FinalizeTermination moves the channel to ConsumerFinalized. Called by the
// consumer side once it has drained every in-flight slot.
func (c *Channel[T]) FinalizeTermination() {
	c.mu.Lock()
	violation := c.stateLocked() < PublisherReceived
	if !violation {
		c.advanceStateLocked(ConsumerFinalized)
		c.spaceAvail.Broadcast()
		c.dataAvail.Broadcast()
	}
	c.mu.Unlock()

	if violation {
		logging.Criticalf(c.logger, "termination finalized before publishers confirmed (state %s)", c.State())
	}
}

// Wake wakes every routine suspended on this channel so it can re-examine
// its cancellation state. Used by cancellation hooks.
func (c *Channel[T]) Wake() {
	c.mu.Lock()
	c.spaceAvail.Broadcast()
	c.dataAvail.Broadcast()
	c.mu.Unlock()
}

func (c *Channel[T]) stateLocked() TerminationState {
	return TerminationState(c.state.Load())
}

// advanceStateLocked moves the state monotonically forward; lesser or equal
// targets are no-ops.
func (c *Channel[T]) advanceStateLocked(to TerminationState) {
	if c.stateLocked() >= to {
		return
	}
	c.state.Store(int32(to))
	if c.metrics != nil {
		c.metrics.terminationState.Set(float64(to))
	}
	c.logger.Debug("termination state advanced", slog.String("state", to.String()))
}

// minCursorLocked returns the slowest active subscriber cursor, or the
// commit cursor when nobody is subscribed (producers run unthrottled,
// overwritten slots had no reader).
func (c *Channel[T]) minCursorLocked() uint64 {
	min := uint64(0)
	found := false
	for i := range c.slots {
		if !c.slots[i].active {
			continue
		}
		if !found || c.slots[i].cursor < min {
			min = c.slots[i].cursor
			found = true
		}
	}
	if !found {
		return c.commit
	}
	return min
}

// advanceCommitLocked folds newly published ranges into the commit cursor in
// reservation order and wakes consumers if it moved.
func (c *Channel[T]) advanceCommitLocked(published int) {
	c.stats.published.Add(uint64(published))
	if c.metrics != nil {
		c.metrics.published.Add(float64(published))
	}

	advanced := false
	for {
		end, ok := c.pending[c.commit]
		if !ok {
			break
		}
		delete(c.pending, c.commit)
		c.commit = end
		advanced = true
	}
	if advanced {
		if c.metrics != nil {
			c.metrics.depth.Set(float64(c.commit - c.minCursorLocked()))
		}
		c.dataAvail.Broadcast()
	}
}

func (c *Channel[T]) publishWaitingLocked() {
	if c.metrics != nil {
		c.metrics.producersWaiting.Set(float64(c.waiting))
	}
}
