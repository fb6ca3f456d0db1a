package guard

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig tunes the backoff inside a single guarded call.
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
	JitterSpread    float64 // delay scaled by uniform [1-spread, 1+spread]
}

// DefaultRetryConfig returns the documented retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		ExponentialBase: 2.0,
		MaxDelay:        60 * time.Second,
		JitterSpread:    0.25,
	}
}

// Delay returns the backoff before attempt k (1-indexed, k ≥ 2):
// min(maxDelay, baseDelay * exponentialBase^(k-2)) scaled by jitter.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(attempt-2))
	d = math.Min(d, float64(c.MaxDelay))

	if c.JitterSpread > 0 {
		d *= 1 - c.JitterSpread + 2*c.JitterSpread*rand.Float64()
	}
	return time.Duration(d)
}

// RetryDo executes fn up to cfg.MaxAttempts times with backoff between
// attempts. Permanent errors propagate immediately without consuming the
// remaining budget; context cancellation aborts the backoff wait. On
// exhaustion the final error is wrapped in ExhaustedError.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.Delay(attempt)
			slog.Warn("retrying after failure",
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"delay", delay.Round(time.Millisecond),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 1 {
				slog.Info("retry succeeded", "attempt", attempt)
			}
			return result, nil
		}
		if IsPermanent(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
