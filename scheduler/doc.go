// Package scheduler provides the task group flow routines run on.
//
// # Model
//
// A Pool launches each routine as one tracked goroutine and offers the
// scheduling surface the drivers consume: Yield between invocations,
// AfterFunc for the cancellation timer, and Wait as the join. The Go
// runtime supplies the work stealing; the pool records the advertised
// worker count (GOMAXPROCS by default) for observability but never queues a
// routine behind it — routines block at channel suspension points for their
// whole lifetime, and a fixed-worker queue would deadlock as soon as the
// routine count exceeded the worker count.
//
// # Observability
//
// Statistics (submitted, active, completed, failed) are always tracked with
// atomic counters. Prometheus export is opt-in via WithMetrics, following
// the dual-tracking pattern used across the repository.
//
// # Shutdown
//
// Stop cancels outstanding timers only. Running routines are never
// interrupted; cancellation is cooperative and flows through tokens, and
// Wait returns once every routine's termination handshake has completed.
package scheduler
