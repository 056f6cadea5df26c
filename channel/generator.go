package channel

import (
	"log/slog"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
)

// Generator lazily yields the messages at positions cursor, cursor+1, ...
// up to the current committed tail. Next suspends while the commit cursor
// has not advanced and the channel is not terminated.
//
// Obtain one per consumption pass via MessageGenerator; a generator is owned
// by a single routine and is not safe for concurrent use.
type Generator[T any] struct {
	ch        *Channel[T]
	tok       *SubscriberToken
	cancelled func() bool
	readPos   uint64
}

// MessageGenerator returns a generator positioned at the subscriber's
// current cursor. The cancelled predicate, when non-nil, aborts a suspended
// Next after the channel is woken (see Wake), letting a cancelled routine
// leave its suspension point.
func (c *Channel[T]) MessageGenerator(tok *SubscriberToken, cancelled func() bool) *Generator[T] {
	if tok == nil || !tok.registered {
		logging.Critical(c.logger, "generator requested with detached token",
			slog.String("error", errors.ErrTokenDetached.Error()))
	}

	c.mu.Lock()
	pos := c.slots[tok.slot].cursor
	c.mu.Unlock()

	return &Generator[T]{ch: c, tok: tok, cancelled: cancelled, readPos: pos}
}

// Next returns the next committed message. It reports false when the channel
// is terminated and drained past the read position, or when the cancelled
// predicate fires; the routine then leaves its consumption loop.
//
// In fan-out mode the read position advances privately and the shared cursor
// catches up through NotifyMessageConsumed. In load-balanced mode the shared
// cursor is claimed at read time so each message reaches exactly one
// subscriber.
func (g *Generator[T]) Next() (T, bool) {
	c := g.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	for {
		if c.delivery == DeliveryLoadBalanced {
			c.stepSkippedSharedLocked()
			if cur := c.slots[0].cursor; cur < c.commit {
				msg := c.ring[cur&c.mask]
				c.slots[0].cursor++
				return msg, true
			}
		} else {
			g.readPos = c.stepSkippedLocked(g.tok.slot, g.readPos)
			if g.readPos < c.commit {
				msg := c.ring[g.readPos&c.mask]
				g.readPos++
				return msg, true
			}
		}

		if c.stateLocked() >= ConsumerInitialized {
			return zero, false
		}
		if g.cancelled != nil && g.cancelled() {
			return zero, false
		}

		c.dataAvail.Wait()
	}
}

// stepSkippedLocked advances a fan-out read position past released gaps,
// dragging the subscriber cursor along when it trails at the same sequence
// so back-pressure accounting and HasPending stay truthful.
func (c *Channel[T]) stepSkippedLocked(slot int, readPos uint64) uint64 {
	advanced := false
	for readPos < c.commit && c.skipped[readPos] {
		if c.slots[slot].cursor == readPos {
			c.slots[slot].cursor++
			advanced = true
		}
		readPos++
	}
	if advanced {
		c.spaceAvail.Broadcast()
	}
	return readPos
}

// stepSkippedSharedLocked is stepSkippedLocked for the load-balanced shared
// cursor.
func (c *Channel[T]) stepSkippedSharedLocked() {
	advanced := false
	for c.slots[0].cursor < c.commit && c.skipped[c.slots[0].cursor] {
		c.slots[0].cursor++
		advanced = true
	}
	if advanced {
		c.spaceAvail.Broadcast()
	}
}
