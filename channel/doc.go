// Package channel implements the bounded, typed multi-producer/
// multi-consumer queue between adjacent pipeline nodes, and the registry
// that keys channels on (name, message type).
//
// # Flow control
//
// Producers advance a shared tail cursor T by reserving contiguous sequence
// numbers; each subscriber holds a cursor c, with Cmin = min(c). A
// reservation grants k = min(batch, capacity-(T-Cmin)) sequences and
// suspends while the ring is full. Slot storage only becomes observable when
// a publish advances the separately tracked commit cursor P <= T, so batches
// may complete out of order while consumers observe commits in reservation
// order.
//
// Invariants, at any time:
//
//   - P <= T and T - Cmin <= capacity
//   - at most one producer writes slot i before all consumers have read it
//   - every committed message reaches every fan-out subscriber exactly once
//     (or exactly one load-balanced subscriber)
//   - the termination state is monotonically non-decreasing
//
// # Termination handshake
//
// Shutdown is a four-state monotonic protocol driven from the consumer side:
//
//	Running -> ConsumerInitialized   (InitializeTermination, consumer side)
//	        -> PublisherReceived     (ConfirmTermination, producer side)
//	        -> ConsumerFinalized     (FinalizeTermination, consumer side)
//
// InitializeTermination wakes every suspended producer so
// RequestPermissionToPublish can return false and the producer can confirm.
// RequestPermissionToPublishOne keeps granting until ConsumerFinalized: it
// carries the one-at-a-time trickle that lets a transformer hand residual
// messages to the consumer driving the final drain.
//
// A producer that cannot fill its reservation (a failed user callable, a
// drain cut short) must hand the unfilled sequences back through
// ReleaseReservation. Released sequences fold into the commit cursor as
// gaps that generators step over; abandoning them instead would stall the
// commit — and with it every fan-in peer — forever.
//
// # Suspension
//
// The only suspension points are a producer waiting for ring space and a
// generator waiting for a commit past its cursor. Both are cond-var waits
// under the channel mutex; the Go scheduler supplies the cooperative
// multiplexing. Wake releases both sides so a cancelled routine can
// re-examine its token.
package channel
