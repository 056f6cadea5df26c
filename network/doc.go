// Package network materializes a user-declared chain into routines and
// channels and drives them until the termination handshake completes.
//
// # Building a pipeline
//
//	c := network.NewChain()
//	c = network.Publish(c, produce)       // func() R
//	c = network.Transform(c, convert)     // func(A) R
//	c = network.Consume(c, receive)       // func(A)
//
//	net, err := network.New(c, network.WithChannelCapacity(128))
//	if err != nil { ... }                 // type mismatches surface here
//	net.CancelAfter(50 * time.Millisecond)
//	err = net.Spin(context.Background())  // blocks until shutdown completes
//
// Adjacent nodes must agree on the message type; a mismatch is a build-time
// failure reported by New before any task starts. Edge channels are keyed on
// (name, message type) in the network's registry; when no name is supplied
// the stringified message type is used, so two unrelated edges of the same
// type collide on the default. Name the edges when that is not intended.
//
// # Low-level registrations
//
// SubscribeTo and PublishTo bypass the chain sugar and attach routines to a
// named registry channel directly; several publishers and subscribers on one
// name fan in and out over the same channel. Both return a CallbackHandle
// whose Disable requests the owning routine to exit.
//
// # Shutdown
//
// CancelAfter arms a timer on the pool that cancels the terminal consumer's
// token; the consumer then drives the handshake backwards through the chain.
// Cancelling mid-chain is undefined, and cancellation timing is
// non-deterministic: the deadline bounds when shutdown begins, not when it
// completes. After Spin returns every channel is finalized and no task
// remains scheduled.
package network
