package chatctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sentinel errors for message resolution. Fetcher implementations map
// platform errors onto these so the extractor can treat a deleted or
// forbidden ancestor as a normal chain boundary.
var (
	ErrNotFound  = errors.New("message not found")
	ErrForbidden = errors.New("message not accessible")

	// ErrContextUnavailable means the triggering message itself could not
	// be read. A broken ancestor never produces this.
	ErrContextUnavailable = errors.New("context unavailable")
)

// Fetcher resolves a single message by ID. One call may perform one
// external fetch; the extractor does not cache across calls.
type Fetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
}

// Extractor builds Context values from inbound messages.
type Extractor struct {
	fetcher  Fetcher
	maxDepth func() int // hot config read
}

// NewExtractor creates an extractor. maxDepth is read per invocation so a
// config reload applies to the next message.
func NewExtractor(fetcher Fetcher, maxDepth func() int) *Extractor {
	return &Extractor{fetcher: fetcher, maxDepth: maxDepth}
}

// Build fetches the triggering message by ID and extracts its context.
// Returns ErrContextUnavailable when the trigger itself cannot be read.
func (e *Extractor) Build(ctx context.Context, channelID, messageID string) (Context, error) {
	msg, err := e.fetcher.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		return Context{}, fmt.Errorf("%w: fetch %s: %w", ErrContextUnavailable, messageID, err)
	}
	return e.BuildFromMessage(ctx, msg), nil
}

// BuildFromMessage extracts context from an already-resolved trigger
// (the usual path: the listener hands over the gateway event). Partial
// reply chains are valid results, never errors.
func (e *Extractor) BuildFromMessage(ctx context.Context, msg Message) Context {
	out := Context{
		Metadata: Metadata{
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
			GuildID:   msg.GuildID,
			Author:    msg.Author,
			Timestamp: msg.Timestamp,
			Content:   msg.Content,
		},
		Chain: e.replyChain(ctx, msg),
	}
	return out
}

// replyChain walks parent references up to maxDepth, prepending each
// resolved ancestor so the result is chronological (oldest first). The
// walk stops at the first missing reference, depth limit, or failed
// resolution — whichever comes first.
func (e *Extractor) replyChain(ctx context.Context, msg Message) []Entry {
	depth := e.maxDepth()
	refID := msg.ReferenceID
	channelID := msg.ChannelID

	var chain []Entry
	for refID != "" && len(chain) < depth {
		parent, err := e.fetcher.FetchMessage(ctx, channelID, refID)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				slog.Debug("reply chain boundary: parent deleted", "message_id", refID)
			case errors.Is(err, ErrForbidden):
				slog.Debug("reply chain boundary: parent forbidden", "message_id", refID)
			default:
				slog.Warn("reply chain fetch failed", "message_id", refID, "error", err)
			}
			break
		}

		chain = append([]Entry{entryFromMessage(parent)}, chain...)
		refID = parent.ReferenceID
	}

	if len(chain) > 0 {
		slog.Debug("extracted reply chain", "message_id", msg.ID, "depth", len(chain))
	}
	return chain
}
