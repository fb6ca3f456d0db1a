package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // rejecting calls
	StateHalfOpen State = "half_open" // probing for recovery
)

// BreakerConfig tunes the circuit breaker state machine.
type BreakerConfig struct {
	FailureThreshold    int           // consecutive failures before CLOSED→OPEN
	RecoveryTimeout     time.Duration // OPEN→HALF_OPEN after this much time
	HalfOpenMaxAttempts int           // consecutive successes before HALF_OPEN→CLOSED
}

// DefaultBreakerConfig returns the documented breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     60 * time.Second,
		HalfOpenMaxAttempts: 3,
	}
}

// Status is a snapshot of breaker state for the operator surface.
type Status struct {
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// Breaker gates calls to the downstream agent. Process-wide singleton: a
// single endpoint failing affects all consumers uniformly, a deliberate
// trade-off against per-channel isolation.
//
// A call's internal retries are invisible here — the breaker sees the end
// result of the whole retry sequence as one success or failure.
type Breaker struct {
	cfg   BreakerConfig
	retry RetryConfig
	stats *Stats

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenSuccesses   int

	now func() time.Time
}

// NewBreaker creates a closed breaker recording outcomes into stats.
func NewBreaker(cfg BreakerConfig, retry RetryConfig, stats *Stats) *Breaker {
	return &Breaker{
		cfg:   cfg,
		retry: retry,
		stats: stats,
		state: StateClosed,
		now:   time.Now,
	}
}

// Call invokes fn through the retry supervisor, gated by circuit state.
// If the circuit is open and the recovery timeout has not elapsed, it
// fails fast with ErrCircuitOpen — fn is never invoked. Every final
// outcome (including fast-fails) is recorded into the error stats.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		b.stats.Record(ErrCircuitOpen)
		return ErrCircuitOpen
	}

	_, err := RetryDo(ctx, b.retry, func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	b.stats.Record(err)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// allow checks whether a call may proceed, lazily moving OPEN→HALF_OPEN
// once the recovery timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			slog.Info("circuit breaker entering half-open state")
			b.state = StateHalfOpen
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	}
	return false
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMaxAttempts {
			slog.Info("circuit breaker closed after successful recovery",
				"probes", b.halfOpenSuccesses)
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			slog.Error("circuit breaker opened",
				"consecutive_failures", b.consecutiveFailures,
				"recovery_timeout", b.cfg.RecoveryTimeout,
			)
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		slog.Warn("circuit breaker re-opened: recovery probe failed")
		b.state = StateOpen
		b.openedAt = b.now()
		b.halfOpenSuccesses = 0
	}
}

// Snapshot returns the current breaker status.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if !b.openedAt.IsZero() && b.state != StateClosed {
		t := b.openedAt
		st.OpenedAt = &t
	}
	return st
}

// Reset forces the breaker closed and clears counters. Operator escape
// hatch: bypasses normal recovery timing.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	slog.Warn("circuit breaker reset by operator", "previous_state", b.state)
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
}
