// Package routine provides the cooperative drivers of the dataflow runtime.
//
// A routine is one long-lived task wrapping a user callable: a spinner
// (no channels), a publisher (head of chain), a transformer (middle), or a
// consumer (tail). Drivers loop until cancellation or termination, suspend
// only at channel boundaries, and run a drain phase afterwards so no peer
// routine is left parked at a suspension point.
//
// # Termination choreography
//
// The tail consumer is the only valid shutdown initiator. When its token
// reports cancellation it acquires the process-wide consumer mutex, calls
// InitializeTermination on its upstream channel, flushes until every
// producer has confirmed, drains the residue, and finalizes.
//
// A transformer that observes downstream termination confirms its side,
// then trickles residual messages one reserved sequence at a time until the
// downstream consumer finalizes, and finally terminates its own upstream
// channel the same way a consumer does. The trickle polls the upstream
// generator without suspending so it never parks while holding a downstream
// reservation.
//
// A publisher has no upstream and therefore no drain obligation beyond
// confirming termination once its reservation request is refused.
//
// # Failure handling
//
// A panic in a user callable is unrecoverable: the driver records it as a
// fatal-class error, still runs its drain phase so sibling routines are not
// left blocked, and returns the error to Spin. There is deliberately no
// per-message error channel.
package routine
