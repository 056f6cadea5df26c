// Package logging provides slog construction helpers and the runtime's
// unrecoverable-failure path.
//
// # Conventions
//
// Routines, channels, and managers log through plain *slog.Logger values
// passed in at construction; a nil logger falls back to slog.Default().
// Components attach their identity as attributes (channel name, routine
// name, network id) rather than embedding it in messages.
//
// ParseLevel maps configuration strings onto slog levels; trace has no slog
// equivalent and maps onto debug, critical onto error.
//
// # Critical
//
// Critical is the one escalation beyond the error level: it logs the
// failure and panics with a *CriticalError. The conditions that reach it
// (token invariant violations, invalid state transitions) indicate a bug in
// the runtime, never in user code, so there is no recovery path — callers
// do not return from Critical. The spin drivers recover panics only around
// user-callable invocations; a Critical raised by the runtime itself is not
// recovered and ends the process.
package logging
