// Package retry provides simple exponential backoff retry logic for the
// runtime; the lifecycle manager uses it for transient service-start
// failures.
//
// # Usage
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    return svc.Start(ctx)
//	})
//
// Do runs the function up to MaxAttempts times, sleeping between attempts
// with exponential backoff (InitialDelay, Multiplier, capped at MaxDelay)
// and optional jitter to avoid thundering herds. Context cancellation is
// honored both between attempts and during a backoff sleep.
//
// # What is retried
//
// Only errors that may plausibly clear on their own. Errors wrapped with
// NonRetryable fail immediately, as do errors the errors package classifies
// as invalid or fatal — retrying a misconfiguration or an invariant
// violation only delays the report.
package retry
