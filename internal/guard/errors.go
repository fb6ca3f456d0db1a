// Package guard shields the pipeline from downstream agent outages: a
// retry supervisor with exponential backoff, a circuit breaker gating
// every guarded call, and passive error statistics for the operator
// surface.
package guard

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned by Breaker.Call when the circuit is open and
// the recovery timeout has not elapsed. The wrapped function is not
// invoked and no retry is attempted.
var ErrCircuitOpen = errors.New("circuit open")

// PermanentError marks an error as non-retryable (malformed input,
// authorization failure). It propagates immediately without consuming
// remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable. Nil-safe.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ExhaustedError is surfaced after all retry attempts fail; the final
// downstream error is wrapped.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Error kinds used in stats breakdowns. CircuitOpen is distinct from
// downstream failures so a flood of fast-fails is visible as such.
const (
	KindCircuitOpen    = "circuit_open"
	KindTimeout        = "timeout"
	KindRetryExhausted = "retry_exhausted"
	KindPermanent      = "permanent"
	KindDownstream     = "downstream"
)

// Classify maps an error to its stats kind.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case IsPermanent(err):
		return KindPermanent
	default:
		var ex *ExhaustedError
		if errors.As(err, &ex) {
			return KindRetryExhausted
		}
		return KindDownstream
	}
}
