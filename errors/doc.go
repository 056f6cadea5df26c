// Package errors provides standardized error handling patterns for the flow
// runtime.
//
// # Overview
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing).
//
// Classification enables informed handling decisions without string matching:
// a lifecycle manager retries a transient start failure, a builder surfaces an
// invalid chain immediately, and a fatal token violation short-circuits
// through the critical-log path.
//
// # Error Wrapping Pattern
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification.
//
// # Standard Error Variables
//
// Pre-defined variables cover the runtime's known failure modes, organized by
// category:
//
//   - Channel: ErrChannelClosed, ErrChannelExists, ErrReservationDenied
//   - Tokens: ErrTokenMismatch, ErrTokenEmpty, ErrTokenDetached
//   - Chain/network: ErrTypeMismatch, ErrEmptyChain, ErrChainHead, ErrChainTail
//   - Lifecycle: ErrAlreadyStarted, ErrAlreadyRegistered, ErrMissingDependency
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// Use these instead of ad hoc messages so callers can branch with errors.Is.
//
// # Integration with errors.As/Is
//
// All error types support standard library inspection; classification is
// preserved through wrapping chains:
//
//	wrapped := errors.WrapInvalid(errors.ErrTypeMismatch, "Chain", "Append", "edge check")
//	errors.IsInvalid(wrapped) // true
//
// Context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient, so context-based timeouts are handled uniformly with channel
// back-pressure denials.
package errors
