package guard

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps test backoff in the microsecond range.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		BaseDelay:       time.Microsecond,
		ExponentialBase: 2.0,
		MaxDelay:        time.Millisecond,
		JitterSpread:    0.25,
	}
}

func TestRetryDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := RetryDo(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryDo error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result: got %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryDoExhaustion(t *testing.T) {
	downstream := errors.New("still broken")
	calls := 0
	_, err := RetryDo(context.Background(), fastRetry(3), func() (struct{}, error) {
		calls++
		return struct{}{}, downstream
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error type: got %T, want *ExhaustedError", err)
	}
	if ex.Attempts != 3 {
		t.Errorf("Attempts: got %d, want 3", ex.Attempts)
	}
	if !errors.Is(err, downstream) {
		t.Error("ExhaustedError does not wrap the final downstream error")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryDoPermanentShortCircuits(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetry(3), func() (struct{}, error) {
		calls++
		return struct{}{}, Permanent(errors.New("bad request"))
	})
	if !IsPermanent(err) {
		t.Fatalf("error: got %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1 (no retries on permanent)", calls)
	}
}

func TestRetryDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour, ExponentialBase: 2.0, MaxDelay: time.Hour}

	_, err := RetryDo(ctx, cfg, func() (struct{}, error) {
		calls++
		cancel() // abort during the backoff before attempt 2
		return struct{}{}, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestDelaySchedule(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:       time.Second,
		ExponentialBase: 2.0,
		MaxDelay:        3 * time.Second,
		// no jitter: exact values
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 3 * time.Second}, // capped
		{5, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:       time.Second,
		ExponentialBase: 2.0,
		MaxDelay:        time.Minute,
		JitterSpread:    0.25,
	}

	lo := time.Duration(float64(2*time.Second) * 0.75)
	hi := time.Duration(float64(2*time.Second) * 1.25)
	for i := 0; i < 200; i++ {
		d := cfg.Delay(3)
		if d < lo || d > hi {
			t.Fatalf("Delay(3) = %v outside [%v, %v]", d, lo, hi)
		}
	}
}
