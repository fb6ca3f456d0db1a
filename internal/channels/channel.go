// Package channels provides the listener abstraction between the chat
// platform and the event pipeline. A listener detects relevant inbound
// messages, enriches them, and hands them to the Sink; everything past
// the Sink is the processor's business.
package channels

import (
	"context"

	"github.com/tytohq/aurora/internal/bus"
)

// Listener is a platform connection feeding the pipeline.
type Listener interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the listener.
	Stop(ctx context.Context) error

	// IsRunning reports whether the listener is connected.
	IsRunning() bool
}

// Sink accepts enriched events for processing. Implemented by the
// processor; returns false when the event was rejected (full queue or
// duplicate).
type Sink interface {
	Enqueue(ev bus.Event) bool
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
