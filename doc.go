// Package flow is a dataflow runtime for linear pipelines of pure functions.
//
// A user declares a chain of callables - a publisher at the head, zero or
// more transformers in the middle, and a consumer at the tail - and the
// runtime connects adjacent nodes with bounded, typed, many-to-many
// in-memory channels and drives each node as one cooperative task until a
// cancellation deadline elapses.
//
// # Layers
//
// The runtime is built from small packages, leaves first:
//
//   - cancellation: one-shot cooperative cancel signal (source/handle split)
//   - channel: the bounded multi-producer/multi-consumer ring with
//     sequence-based flow control and the four-state termination handshake
//   - routine: the cooperative drivers (spinner, publisher, transformer,
//     consumer) and the shared flush helper
//   - network: the chain builder, channel allocation, callback handles,
//     CancelAfter and Spin
//   - scheduler: the task group routines run on
//   - lifecycle: a service registry that wires dependent services together
//     as their required interfaces come online
//
// Ambient concerns follow the rest of the repository: log/slog for logging,
// the errors package for classification and wrapping, metric for prometheus
// registration, config for YAML runtime configuration.
//
// # Minimal example
//
//	c := network.NewChain()
//	c = network.Publish(c, func() string { return "Hello World" })
//	c = network.Consume(c, func(s string) { fmt.Println(s) })
//
//	net, err := network.New(c)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	net.CancelAfter(10 * time.Millisecond)
//	if err := net.Spin(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Cancellation is cooperative and non-deterministic: CancelAfter bounds when
// shutdown begins, not when it completes. The termination handshake drains
// every in-flight message before Spin returns.
package flow
