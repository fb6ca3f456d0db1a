package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tytohq/aurora/internal/agent"
	"github.com/tytohq/aurora/internal/bus"
	"github.com/tytohq/aurora/internal/chatctx"
	"github.com/tytohq/aurora/internal/guard"
)

// fakeInvoker records requests and signals each invocation.
type fakeInvoker struct {
	mu       sync.Mutex
	requests []agent.Request
	err      error
	invoked  chan struct{}
}

func newFakeInvoker(err error) *fakeInvoker {
	return &fakeInvoker{err: err, invoked: make(chan struct{}, 16)}
}

func (f *fakeInvoker) Invoke(_ context.Context, req agent.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	f.invoked <- struct{}{}
	return f.err
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeJournal collects entries.
type fakeJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *fakeJournal) Append(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func fastRetry() guard.RetryConfig {
	return guard.RetryConfig{
		MaxAttempts:     1,
		BaseDelay:       time.Microsecond,
		ExponentialBase: 2.0,
		MaxDelay:        time.Millisecond,
	}
}

// newTestProcessor wires a processor over real queue/breaker/stats with a
// no-op rate limit and instant sleeps.
func newTestProcessor(invoker agent.Invoker, journal Journal, rateLimit time.Duration) (*Processor, *bus.Queue) {
	queue := bus.NewQueue(10, func() time.Duration { return rateLimit })
	stats := guard.NewStats(0)
	breaker := guard.NewBreaker(guard.DefaultBreakerConfig(), fastRetry(), stats)

	p := New(Deps{
		Queue:       queue,
		Breaker:     breaker,
		Stats:       stats,
		Invoker:     invoker,
		Journal:     journal,
		CallTimeout: func() time.Duration { return time.Second },
	})
	p.sleep = func(ctx context.Context, _ time.Duration) {
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
	}
	return p, queue
}

func testEvent(msgID, channelID string) bus.Event {
	return bus.Event{
		Type:      bus.EventMention,
		MessageID: msgID,
		ChannelID: channelID,
		Context: chatctx.Context{
			Metadata: chatctx.Metadata{
				MessageID: msgID,
				ChannelID: channelID,
				Author:    chatctx.Author{ID: "u1", DisplayName: "alice"},
				Content:   "hello",
			},
		},
	}
}

func waitInvoked(t *testing.T, inv *fakeInvoker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-inv.invoked:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for invocation %d of %d", i+1, n)
		}
	}
}

func TestProcessorInvokesAgent(t *testing.T) {
	inv := newFakeInvoker(nil)
	journal := &fakeJournal{}
	p, _ := newTestProcessor(inv, journal, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	if !p.Enqueue(testEvent("m1", "c1")) {
		t.Fatal("Enqueue rejected event")
	}
	waitInvoked(t, inv, 1)
	cancel()
	<-done

	req := inv.requests[0]
	if req.EventType != string(bus.EventMention) {
		t.Errorf("EventType: got %s", req.EventType)
	}
	if req.ChannelID != "c1" {
		t.Errorf("ChannelID: got %s", req.ChannelID)
	}
	if req.RunID == "" {
		t.Error("RunID empty")
	}
	if req.Prompt == "" {
		t.Error("Prompt empty, context not rendered")
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.entries) != 1 {
		t.Fatalf("journal entries: got %d, want 1", len(journal.entries))
	}
	if e := journal.entries[0]; !e.OK || e.Kind != "" || e.MessageID != "m1" {
		t.Errorf("journal entry: %+v", e)
	}
}

func TestProcessorFailureDiscardsEvent(t *testing.T) {
	inv := newFakeInvoker(errors.New("agent down"))
	journal := &fakeJournal{}
	p, queue := newTestProcessor(inv, journal, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.Enqueue(testEvent("m1", "c1"))
	waitInvoked(t, inv, 1)
	cancel()
	<-done

	// Failed events are never re-enqueued.
	if got := queue.Size(); got != 0 {
		t.Errorf("queue size after failure: got %d, want 0", got)
	}
	journal.mu.Lock()
	defer journal.mu.Unlock()
	if e := journal.entries[0]; e.OK || e.Kind != guard.KindRetryExhausted {
		t.Errorf("journal entry: %+v", e)
	}
}

func TestProcessorRateLimitRequeues(t *testing.T) {
	inv := newFakeInvoker(nil)
	p, _ := newTestProcessor(inv, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.Enqueue(testEvent("m1", "c1"))
	p.Enqueue(testEvent("m2", "c1")) // same channel, gated for an hour
	p.Enqueue(testEvent("m3", "c2")) // other channel stays live

	waitInvoked(t, inv, 2)
	cancel()
	<-done

	inv.mu.Lock()
	defer inv.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range inv.requests {
		seen[r.ChannelID] = true
	}
	if !seen["c1"] || !seen["c2"] {
		t.Errorf("processed channels: %v, want c1 and c2", seen)
	}
	if len(inv.requests) != 2 {
		t.Errorf("invocations: got %d, want 2 (m2 stays gated)", len(inv.requests))
	}
}

func TestProcessorPauseResume(t *testing.T) {
	inv := newFakeInvoker(nil)
	p, queue := newTestProcessor(inv, nil, 0)

	p.Pause()
	if !p.IsPaused() {
		t.Fatal("IsPaused after Pause: false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.Enqueue(testEvent("m1", "c1"))
	time.Sleep(20 * time.Millisecond)
	if inv.count() != 0 {
		t.Fatal("event processed while paused")
	}
	if got := queue.Size(); got != 1 {
		t.Fatalf("queue size while paused: got %d, want 1", got)
	}

	p.Resume()
	waitInvoked(t, inv, 1)
	cancel()
	<-done
}

func TestProcessorCircuitOpenDropsWithoutInvoking(t *testing.T) {
	inv := newFakeInvoker(errors.New("agent down"))
	p, _ := newTestProcessor(inv, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	// Five failures trip the default breaker.
	for i := 0; i < 5; i++ {
		p.Enqueue(testEvent(string(rune('a'+i)), "c1"))
	}
	waitInvoked(t, inv, 5)

	// The fifth outcome lands in the breaker shortly after the invocation
	// signal; poll rather than assert instantly.
	deadline := time.Now().Add(2 * time.Second)
	for p.CircuitStatus().State != guard.StateOpen {
		if time.Now().After(deadline) {
			t.Fatalf("circuit state: got %s, want open", p.CircuitStatus().State)
		}
		time.Sleep(time.Millisecond)
	}

	p.Enqueue(testEvent("blocked", "c1"))
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := inv.count(); got != 5 {
		t.Errorf("invocations: got %d, want 5 (fast-fail skips the agent)", got)
	}
	if r := p.ErrorStats(0); r.Breakdown[guard.KindCircuitOpen] != 1 {
		t.Errorf("circuit_open outcomes: got %d, want 1", r.Breakdown[guard.KindCircuitOpen])
	}
}

func TestProcessorShutdownStopsLoop(t *testing.T) {
	inv := newFakeInvoker(nil)
	p, _ := newTestProcessor(inv, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEnqueueDuplicateSilent(t *testing.T) {
	inv := newFakeInvoker(nil)
	p, _ := newTestProcessor(inv, nil, 0)

	if !p.Enqueue(testEvent("m1", "c1")) {
		t.Fatal("first Enqueue rejected")
	}
	if p.Enqueue(testEvent("m1", "c1")) {
		t.Error("duplicate Enqueue accepted")
	}
}
