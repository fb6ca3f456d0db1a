package processor

import (
	"log/slog"
	"time"

	"github.com/tytohq/aurora/internal/bus"
	"github.com/tytohq/aurora/internal/guard"
)

// Operator surface consumed by the command layer. The pipeline is silent
// on the inbound channel by design — failures are visible only here.

// Enqueue accepts an enriched event from the listener. Returns whether
// the event was accepted; a full queue is logged, a duplicate is a
// silent no-op.
func (p *Processor) Enqueue(ev bus.Event) bool {
	switch err := p.queue.Enqueue(ev); {
	case err == nil:
		slog.Debug("event enqueued",
			"type", ev.Type, "channel_id", ev.ChannelID, "message_id", ev.MessageID,
			"queue_size", p.queue.Size())
		return true
	case err == bus.ErrDuplicate:
		slog.Debug("skipping duplicate message", "message_id", ev.MessageID)
		return false
	default: // bus.ErrQueueFull
		slog.Warn("queue full, dropping event",
			"channel_id", ev.ChannelID, "message_id", ev.MessageID,
			"queue_size", p.queue.Size())
		return false
	}
}

// QueueStats returns the queue snapshot.
func (p *Processor) QueueStats() bus.Stats { return p.queue.Snapshot() }

// CircuitStatus returns the breaker snapshot.
func (p *Processor) CircuitStatus() guard.Status { return p.breaker.Snapshot() }

// ErrorStats returns outcome statistics over the trailing window
// (whole buffer when window is zero).
func (p *Processor) ErrorStats(window time.Duration) guard.Report {
	return p.stats.Snapshot(window)
}

// ResetCircuit forces the breaker closed. Operator escape hatch.
func (p *Processor) ResetCircuit() { p.breaker.Reset() }

// Pause stops the loop from dequeuing. In-flight calls are not
// interrupted; pause takes effect before the next dequeue.
func (p *Processor) Pause() {
	if !p.paused.Swap(true) {
		slog.Info("event processing paused")
	}
}

// Resume re-enables dequeuing.
func (p *Processor) Resume() {
	if p.paused.Swap(false) {
		slog.Info("event processing resumed")
	}
}

// IsPaused reports the pause toggle.
func (p *Processor) IsPaused() bool { return p.paused.Load() }
