package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Rejection conditions signaled by Enqueue. Backpressure is by design,
// not failure: callers log QueueFull and silently drop Duplicate.
var (
	ErrQueueFull = errors.New("queue full")
	ErrDuplicate = errors.New("duplicate message")
)

// seenCap bounds the dedup window. Oldest entries are evicted past the
// cap — a best-effort window, not a guarantee against all replays.
const seenCap = 500

// Queue is a bounded FIFO of events with per-channel rate limiting and
// message-ID deduplication. Enqueue may be called concurrently from
// inbound handlers; Dequeue is driven by the single processor loop.
type Queue struct {
	events chan Event

	mu            sync.Mutex
	lastProcessed map[string]time.Time
	seen          map[string]struct{}
	seenOrder     []string

	rateLimit func() time.Duration // hot config read
	now       func() time.Time
}

// NewQueue creates a queue with the given capacity. rateLimit is read on
// every CanProcess call so a config reload applies immediately.
func NewQueue(maxSize int, rateLimit func() time.Duration) *Queue {
	q := &Queue{
		events:        make(chan Event, maxSize),
		lastProcessed: make(map[string]time.Time),
		seen:          make(map[string]struct{}),
		rateLimit:     rateLimit,
		now:           time.Now,
	}
	slog.Info("message queue initialized", "max_size", maxSize)
	return q
}

// Enqueue appends an event. Returns ErrDuplicate when the message ID is
// in the dedup window, ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[ev.MessageID]; dup {
		return ErrDuplicate
	}

	if ev.EnqueuedAt.IsZero() {
		ev.EnqueuedAt = q.now()
	}

	select {
	case q.events <- ev:
	default:
		return ErrQueueFull
	}

	q.remember(ev.MessageID)
	return nil
}

// remember records a message ID in the dedup window, evicting the oldest
// entry once the cap is reached. Caller holds q.mu.
func (q *Queue) remember(messageID string) {
	if messageID == "" {
		return
	}
	q.seen[messageID] = struct{}{}
	q.seenOrder = append(q.seenOrder, messageID)
	for len(q.seenOrder) > seenCap {
		oldest := q.seenOrder[0]
		q.seenOrder = q.seenOrder[1:]
		delete(q.seen, oldest)
	}
}

// Dequeue blocks until an event is available or ctx is cancelled.
// Pure FIFO among enqueued items.
func (q *Queue) Dequeue(ctx context.Context) (Event, bool) {
	select {
	case <-ctx.Done():
		return Event{}, false
	case ev := <-q.events:
		return ev, true
	}
}

// Requeue reinserts a rate-limited event at the tail, trading strict
// per-channel ordering under contention for liveness of other channels.
// Returns false if the queue refilled in the meantime and the event was
// dropped.
func (q *Queue) Requeue(ev Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		return false
	}
}

// CanProcess reports whether the channel's minimum inter-processing
// spacing has elapsed. A channel never processed before is ready.
func (q *Queue) CanProcess(channelID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	last, ok := q.lastProcessed[channelID]
	if !ok {
		return true
	}
	return q.now().Sub(last) >= q.rateLimit()
}

// MarkProcessed records now as the channel's last processing time.
func (q *Queue) MarkProcessed(channelID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastProcessed[channelID] = q.now()
}

// Size returns the number of pending events.
func (q *Queue) Size() int { return len(q.events) }

// Clear drains all pending events, returning how many were dropped.
func (q *Queue) Clear() int {
	n := 0
	for {
		select {
		case <-q.events:
			n++
		default:
			slog.Info("message queue cleared", "dropped", n)
			return n
		}
	}
}

// Snapshot returns queue statistics for the operator surface.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Size:             len(q.events),
		MaxSize:          cap(q.events),
		RateLimitSeconds: q.rateLimit().Seconds(),
		TrackedChannels:  len(q.lastProcessed),
		TrackedIDs:       len(q.seen),
	}
}
