// Package cancellation provides the one-shot cooperative cancel signal
// shared by a routine and its external handle.
//
// # Two views
//
// A Token has a source view and an external view. The source view is owned
// by the task: CancellationRequested is observed at loop boundaries only,
// never injected into a running callable. The Handle view is held externally
// (by the network builder, a callback handle, or a timer) and exposes
// RequestCancellation.
//
// Transitions are monotonic (false to true) and repeat requests are
// idempotent. There is no propagation graph: composition is by convention,
// e.g. the builder hands the terminal consumer's handle to CancelAfter.
//
// # Wake hooks
//
// A routine suspended at a channel boundary cannot observe its token until
// it wakes, so drivers register the channel's Wake through OnCancel. The
// hook runs exactly once, on the first request; registering after
// cancellation runs the hook immediately. Hooks must not block.
//
// # Detached handles
//
// The zero Handle is detached: requests are no-ops and
// CancellationRequested reports true, so a disabled or never-wired handle
// never reads as live.
package cancellation
