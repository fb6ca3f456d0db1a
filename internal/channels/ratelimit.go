package channels

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedSenders caps the number of tracked per-sender limiters to
// prevent memory exhaustion from rotating sender IDs.
const maxTrackedSenders = 4096

// IngressLimiter bounds how fast any single sender can push messages
// into the pipeline, ahead of the queue's own per-channel pacing.
// Safe for concurrent use.
type IngressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewIngressLimiter allows perMinute messages per sender with a small
// burst allowance.
func NewIngressLimiter(perMinute int) *IngressLimiter {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &IngressLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the sender is within its rate. Evicts arbitrary
// entries once the tracking cap is reached.
func (l *IngressLimiter) Allow(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[senderID]
	if !ok {
		for len(l.limiters) >= maxTrackedSenders {
			for k := range l.limiters {
				delete(l.limiters, k)
				break
			}
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[senderID] = lim
	}

	return lim.Allow()
}
