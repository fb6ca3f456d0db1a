// Package discord connects the pipeline to Discord via the Bot API
// gateway. The listener detects mentions, replies to the bot, and DMs,
// enriches them with reply-chain context, and enqueues them; it also
// serves as the message fetcher for context extraction and the typing
// indicator for the processor.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tytohq/aurora/internal/bus"
	"github.com/tytohq/aurora/internal/channels"
	"github.com/tytohq/aurora/internal/channels/typing"
	"github.com/tytohq/aurora/internal/chatctx"
	"github.com/tytohq/aurora/internal/config"
)

// Channel is the Discord listener.
type Channel struct {
	session   *discordgo.Session
	cfg       *config.Config
	extractor *chatctx.Extractor
	sink      channels.Sink
	ingress   *channels.IngressLimiter

	botUserID   string // populated on Start
	running     bool
	typingCtrls sync.Map // channelID string → *typing.Controller
}

// New creates a Discord listener. The extractor is constructed by the
// caller with this channel as its Fetcher.
func New(cfg *config.Config, sink channels.Sink) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Channel{
		session: session,
		cfg:     cfg,
		sink:    sink,
		ingress: channels.NewIngressLimiter(cfg.Discord.IngressPerMinute),
	}
	c.extractor = chatctx.NewExtractor(c, cfg.ReplyDepth)
	return c, nil
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "discord" }

// IsRunning reports whether the gateway connection is open.
func (c *Channel) IsRunning() bool { return c.running }

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord listener")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.running = true

	slog.Info("discord listener connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord listener")
	c.running = false
	return c.session.Close()
}

// handleMessage classifies an incoming message and enqueues it when it
// should trigger the agent. Everything rejected here is silent on the
// inbound channel by design.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID {
		return
	}
	if m.Author.Bot && !c.cfg.RespondToBots() {
		return
	}

	isDM := m.GuildID == ""

	var evType bus.EventType
	switch {
	case isDM:
		if !c.cfg.RespondToDMs() {
			slog.Debug("discord DM ignored by config", "sender_id", m.Author.ID)
			return
		}
		evType = bus.EventDirectMessage
	case c.mentionsBot(m) || c.repliesToBot(m):
		evType = bus.EventMention
	default:
		return
	}

	if !c.isAllowed(m.Author.ID) {
		slog.Debug("discord message rejected by allowlist",
			"sender_id", m.Author.ID, "username", m.Author.Username)
		return
	}

	if !c.ingress.Allow(m.Author.ID) {
		slog.Debug("discord message dropped: sender flood limit",
			"sender_id", m.Author.ID, "channel_id", m.ChannelID)
		return
	}

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"type", evType,
		"preview", channels.Truncate(m.Content, 50),
	)

	// Enrichment may fetch up to maxDepth ancestors; bound it so a slow
	// API cannot stall the gateway handler pool.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msgCtx := c.extractor.BuildFromMessage(ctx, toMessage(m.Message))

	accepted := c.sink.Enqueue(bus.Event{
		Type:      evType,
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Context:   msgCtx,
	})
	if !accepted {
		slog.Debug("discord message not enqueued", "message_id", m.ID)
	}
}

// mentionsBot reports whether the bot user is @mentioned.
func (c *Channel) mentionsBot(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	return false
}

// repliesToBot reports whether the message is a reply to one of the
// bot's own messages. Replying to the bot counts as a mention-equivalent
// trigger even without an explicit @.
func (c *Channel) repliesToBot(m *discordgo.MessageCreate) bool {
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == c.botUserID
}

// isAllowed checks the sender allowlist. Empty allowlist admits everyone.
func (c *Channel) isAllowed(senderID string) bool {
	allow := c.cfg.AllowFrom()
	return len(allow) == 0 || slices.Contains(allow, senderID)
}

// TypingStart fires a typing indicator with keepalive and TTL safety
// net. Discord typing expires after 10s, so keepalive every 9s; TTL
// auto-stops after 60s to prevent stuck indicators.
func (c *Channel) TypingStart(channelID string) (stop func()) {
	ctrl := typing.New(typing.Options{
		MaxDuration:       60 * time.Second,
		KeepaliveInterval: 9 * time.Second,
		StartFn: func() error {
			return c.session.ChannelTyping(channelID)
		},
	})
	if prev, ok := c.typingCtrls.Load(channelID); ok {
		prev.(*typing.Controller).Stop()
	}
	c.typingCtrls.Store(channelID, ctrl)
	ctrl.Start()

	return func() {
		c.typingCtrls.CompareAndDelete(channelID, ctrl)
		ctrl.Stop()
	}
}
