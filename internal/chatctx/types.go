// Package chatctx extracts structural context from a single inbound chat
// message: author/channel metadata plus a bounded reply chain walked through
// parent references. Extraction goes through the Fetcher interface so the
// platform client stays outside the core.
package chatctx

import (
	"fmt"
	"strings"
	"time"
)

// Author identifies a message author.
type Author struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Message is the platform-neutral view of a chat message that the
// extractor consumes. GuildID is empty for direct messages. ReferenceID
// is the parent message ID when the message is a reply, else empty.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	Content     string
	Author      Author
	Timestamp   time.Time
	ReferenceID string
}

// Metadata is the structural metadata of the triggering message.
type Metadata struct {
	MessageID string
	ChannelID string
	GuildID   string
	Author    Author
	Timestamp time.Time
	Content   string
}

// Entry is one resolved ancestor in a reply chain.
type Entry struct {
	MessageID         string
	AuthorDisplayName string
	Content           string
	Timestamp         time.Time
	IsBot             bool
}

// Context is the extractor output attached to a queued event.
type Context struct {
	Metadata Metadata
	Chain    []Entry // oldest first, len ≤ configured max depth
}

// Render assembles the context into a structural text block for the
// downstream agent. Layout only — no natural-language templating.
func (c Context) Render() string {
	var b strings.Builder

	b.WriteString("[message]\n")
	fmt.Fprintf(&b, "from: %s (id=%s)\n", c.Metadata.Author.DisplayName, c.Metadata.Author.ID)
	fmt.Fprintf(&b, "channel: %s\n", c.Metadata.ChannelID)
	if c.Metadata.GuildID != "" {
		fmt.Fprintf(&b, "guild: %s\n", c.Metadata.GuildID)
	}
	fmt.Fprintf(&b, "time: %s\n", c.Metadata.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "id: %s\n", c.Metadata.MessageID)

	if len(c.Chain) > 0 {
		b.WriteString("\n[reply chain, oldest first]\n")
		for _, e := range c.Chain {
			flag := ""
			if e.IsBot {
				flag = " (bot)"
			}
			fmt.Fprintf(&b, "- %s%s [%s]: %s\n",
				e.AuthorDisplayName, flag, e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Content)
		}
	}

	b.WriteString("\n[content]\n")
	b.WriteString(c.Metadata.Content)

	return b.String()
}

// entryFromMessage converts a resolved ancestor into a chain entry.
func entryFromMessage(m Message) Entry {
	content := m.Content
	if content == "" {
		content = "[no text content]"
	}
	return Entry{
		MessageID:         m.ID,
		AuthorDisplayName: m.Author.DisplayName,
		Content:           content,
		Timestamp:         m.Timestamp,
		IsBot:             m.Author.IsBot,
	}
}
