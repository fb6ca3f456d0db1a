package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tytohq/aurora/internal/chatctx"
)

// FetchMessage resolves a single message via the REST API, mapping
// Discord errors onto the extractor's chain-boundary sentinels.
func (c *Channel) FetchMessage(ctx context.Context, channelID, messageID string) (chatctx.Message, error) {
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound:
				return chatctx.Message{}, chatctx.ErrNotFound
			case http.StatusForbidden:
				return chatctx.Message{}, chatctx.ErrForbidden
			}
		}
		return chatctx.Message{}, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return toMessage(msg), nil
}

// toMessage converts a Discord message into the platform-neutral form
// the extractor consumes.
func toMessage(m *discordgo.Message) chatctx.Message {
	out := chatctx.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   contentOf(m),
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		out.Author = chatctx.Author{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: resolveDisplayName(m),
			IsBot:       m.Author.Bot,
		}
	}
	if m.MessageReference != nil {
		out.ReferenceID = m.MessageReference.MessageID
	}
	return out
}

// resolveDisplayName picks the best available name for a message author:
// server nickname, then global display name, then username.
func resolveDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return ""
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// contentOf returns the message text with attachment URLs appended, so
// image or file posts still carry something useful downstream.
func contentOf(m *discordgo.Message) string {
	content := strings.TrimSpace(m.Content)
	for _, a := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += "[attachment] " + a.URL
	}
	return content
}
