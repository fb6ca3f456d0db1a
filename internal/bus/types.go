// Package bus holds the event types and the bounded queue that connect the
// Discord listener to the processor loop.
package bus

import (
	"time"

	"github.com/tytohq/aurora/internal/chatctx"
)

// EventType classifies what triggered an event.
type EventType string

const (
	EventMention       EventType = "mention"
	EventDirectMessage EventType = "direct_message"
)

// Event is one inbound message enriched with context, queued for
// downstream processing. Immutable once enqueued; never persisted past
// process lifetime.
type Event struct {
	Type       EventType
	MessageID  string
	ChannelID  string
	GuildID    string // empty for direct messages
	Context    chatctx.Context
	EnqueuedAt time.Time
}

// Stats is a point-in-time snapshot of queue state for the operator surface.
type Stats struct {
	Size             int     `json:"size"`
	MaxSize          int     `json:"max_size"`
	RateLimitSeconds float64 `json:"rate_limit_seconds"`
	TrackedChannels  int     `json:"tracked_channels"`
	TrackedIDs       int     `json:"tracked_ids"`
}
