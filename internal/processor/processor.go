// Package processor drives the pipeline: a single cooperative loop that
// dequeues enriched events, paces them per channel, and invokes the
// downstream agent through the circuit breaker.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tytohq/aurora/internal/agent"
	"github.com/tytohq/aurora/internal/bus"
	"github.com/tytohq/aurora/internal/guard"
)

// rateLimitYield is how long the loop backs off after tail-requeueing a
// rate-limited event, so other channels can drain meanwhile.
const rateLimitYield = 100 * time.Millisecond

// pausePoll is how often the loop re-checks the pause toggle.
const pausePoll = 250 * time.Millisecond

// TypingStarter starts a typing indicator on a channel and returns a stop
// function. Fire-and-forget: failures are the implementation's problem.
type TypingStarter interface {
	TypingStart(channelID string) (stop func())
}

// Journal records guarded-call outcomes for operator queries. Optional.
type Journal interface {
	Append(ctx context.Context, e JournalEntry) error
}

// JournalEntry is one recorded outcome.
type JournalEntry struct {
	RunID      string
	EventType  string
	ChannelID  string
	MessageID  string
	OK         bool
	Kind       string
	DurationMS int64
	CreatedAt  time.Time
}

// Deps are the collaborators wired in at startup. Breaker and Stats are
// process-wide singletons constructed once and shared by reference.
type Deps struct {
	Queue       *bus.Queue
	Breaker     *guard.Breaker
	Stats       *guard.Stats
	Invoker     agent.Invoker
	Typing      TypingStarter // optional
	Journal     Journal       // optional
	CallTimeout func() time.Duration
}

// Processor owns the worker loop and exposes the operator surface.
type Processor struct {
	queue       *bus.Queue
	breaker     *guard.Breaker
	stats       *guard.Stats
	invoker     agent.Invoker
	typing      TypingStarter
	journal     Journal
	callTimeout func() time.Duration

	paused atomic.Bool
	tracer trace.Tracer

	sleep func(ctx context.Context, d time.Duration)
}

// New wires a processor from its collaborators.
func New(d Deps) *Processor {
	return &Processor{
		queue:       d.Queue,
		breaker:     d.Breaker,
		stats:       d.Stats,
		invoker:     d.Invoker,
		typing:      d.Typing,
		journal:     d.Journal,
		callTimeout: d.CallTimeout,
		tracer:      otel.Tracer("aurora/processor"),
		sleep:       sleepCtx,
	}
}

// SetTyping wires the typing indicator. Called during startup wiring,
// before Run: the listener needs the processor as its sink, so the
// indicator arrives second.
func (p *Processor) SetTyping(t TypingStarter) { p.typing = t }

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Run drives the loop until ctx is cancelled. An in-flight guarded call
// is allowed to finish or time out before Run returns — shutdown is
// cooperative, never preemptive.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("event processor started")

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("event processor stopped")
			return nil
		}

		// While paused, dequeue is not invoked; events accumulate
		// subject to queue capacity.
		if p.paused.Load() {
			p.sleep(ctx, pausePoll)
			continue
		}

		ev, ok := p.queue.Dequeue(ctx)
		if !ok {
			slog.Info("event processor stopped")
			return nil
		}

		if !p.queue.CanProcess(ev.ChannelID) {
			// Tail reinsert keeps other channels live at the cost of
			// strict per-channel ordering under contention.
			if !p.queue.Requeue(ev) {
				slog.Warn("rate-limited event dropped, queue refilled",
					"channel_id", ev.ChannelID, "message_id", ev.MessageID)
			}
			p.sleep(ctx, rateLimitYield)
			continue
		}

		p.process(ctx, ev)
	}
}

// process runs one guarded invocation. Failures are logged and the event
// is discarded — never re-enqueued, to avoid infinite failure loops.
func (p *Processor) process(ctx context.Context, ev bus.Event) {
	runID := "inbound-" + ev.ChannelID + "-" + uuid.NewString()[:8]

	ctx, span := p.tracer.Start(ctx, "processor.invoke",
		trace.WithAttributes(
			attribute.String("event.type", string(ev.Type)),
			attribute.String("event.channel_id", ev.ChannelID),
			attribute.String("run.id", runID),
		))
	defer span.End()

	if p.typing != nil {
		stop := p.typing.TypingStart(ev.ChannelID)
		defer stop()
	}

	// Detached from loop cancellation: a hard shutdown lets the current
	// call finish or hit its own deadline rather than aborting mid-retry.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.callTimeout())
	defer cancel()

	req := agent.Request{
		RunID:     runID,
		EventType: string(ev.Type),
		ChannelID: ev.ChannelID,
		GuildID:   ev.GuildID,
		Prompt:    ev.Context.Render(),
	}

	start := time.Now()
	err := p.breaker.Call(callCtx, func(c context.Context) error {
		return p.invoker.Invoke(c, req)
	})
	elapsed := time.Since(start)

	p.queue.MarkProcessed(ev.ChannelID)
	p.record(ctx, ev, runID, err, elapsed)

	switch {
	case err == nil:
		slog.Info("event processed",
			"run_id", runID,
			"type", ev.Type,
			"channel_id", ev.ChannelID,
			"duration", elapsed.Round(time.Millisecond),
		)
	case errors.Is(err, guard.ErrCircuitOpen):
		slog.Warn("event dropped: circuit open",
			"run_id", runID, "channel_id", ev.ChannelID, "message_id", ev.MessageID)
	default:
		slog.Error("event dropped: agent invocation failed",
			"run_id", runID,
			"channel_id", ev.ChannelID,
			"message_id", ev.MessageID,
			"kind", guard.Classify(err),
			"error", err,
		)
	}

	if err != nil {
		span.SetStatus(codes.Error, guard.Classify(err))
	}
}

func (p *Processor) record(ctx context.Context, ev bus.Event, runID string, callErr error, elapsed time.Duration) {
	if p.journal == nil {
		return
	}
	entry := JournalEntry{
		RunID:      runID,
		EventType:  string(ev.Type),
		ChannelID:  ev.ChannelID,
		MessageID:  ev.MessageID,
		OK:         callErr == nil,
		Kind:       guard.Classify(callErr),
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.journal.Append(ctx, entry); err != nil {
		slog.Warn("journal append failed", "run_id", runID, "error", err)
	}
}
