package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the Aurora gateway.
//
// Fields fall into two categories:
//   - hot: re-read on every use via the accessor methods below, so a config
//     reload applies on the next event (rate limit, reply depth, respond
//     toggles, call timeout).
//   - cold: read once at startup (queue capacity, journal path, telemetry);
//     changing them requires a restart. The watcher logs and ignores edits
//     to cold fields.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Agent     AgentConfig     `json:"agent"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// DiscordConfig configures the Discord listener.
// Token is NEVER read from the config file (secret) — only from env AURORA_DISCORD_TOKEN.
type DiscordConfig struct {
	Token            string   `json:"-"`
	AllowFrom        []string `json:"allow_from,omitempty"`         // sender allowlist (empty = allow all)
	RespondToBots    bool     `json:"respond_to_bots,omitempty"`    // default false
	RespondToDMs     *bool    `json:"respond_to_dms,omitempty"`     // default true
	IngressPerMinute int      `json:"ingress_per_minute,omitempty"` // per-sender flood cap (default 30)
}

// RespondToDMsEnabled returns the effective DM toggle (default true).
func (d DiscordConfig) RespondToDMsEnabled() bool {
	return d.RespondToDMs == nil || *d.RespondToDMs
}

// AgentConfig configures the downstream agent endpoint.
// Token comes from env AURORA_AGENT_TOKEN only.
type AgentConfig struct {
	BaseURL string `json:"base_url"`
	AgentID string `json:"agent_id"`
	Token   string `json:"-"`
}

// PipelineConfig tunes the queue, rate limiter, circuit breaker and retry supervisor.
type PipelineConfig struct {
	MaxQueueSize           int         `json:"max_queue_size"`           // cold; [10,200]
	RateLimitSeconds       float64     `json:"rate_limit_seconds"`       // hot; [0.5,10]
	ReplyChainDepth        int         `json:"reply_chain_depth"`        // hot; [1,10]
	CallTimeoutSeconds     int         `json:"call_timeout_seconds"`     // hot; [10,300]
	FailureThreshold       int         `json:"failure_threshold"`        // breaker CLOSED→OPEN
	RecoveryTimeoutSeconds int         `json:"recovery_timeout_seconds"` // breaker OPEN→HALF_OPEN
	HalfOpenMaxAttempts    int         `json:"half_open_max_attempts"`   // probes before HALF_OPEN→CLOSED
	Retry                  RetryConfig `json:"retry"`
	JournalPath            string      `json:"journal_path,omitempty"` // cold; empty = journal disabled
}

// RetryConfig tunes the exponential backoff inside a single guarded call.
type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	BaseDelaySeconds float64 `json:"base_delay_seconds"`
	ExponentialBase  float64 `json:"exponential_base"`
	MaxDelaySeconds  float64 `json:"max_delay_seconds"`
	JitterSpread     float64 `json:"jitter_spread"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // host:port of the OTLP collector
	Protocol    string `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	ServiceName string `json:"service_name,omitempty"` // default "aurora"
	Insecure    bool   `json:"insecure,omitempty"`
}

// --- hot accessors (snapshot reads; refreshed by the config watcher) ---

// RateLimit returns the minimum per-channel spacing between processed events.
func (c *Config) RateLimit() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Pipeline.RateLimitSeconds * float64(time.Second))
}

// ReplyDepth returns the max reply-chain depth.
func (c *Config) ReplyDepth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Pipeline.ReplyChainDepth
}

// CallTimeout returns the per-invocation deadline for the guarded agent call.
func (c *Config) CallTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Pipeline.CallTimeoutSeconds) * time.Second
}

// RespondToBots returns the bot-author toggle.
func (c *Config) RespondToBots() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Discord.RespondToBots
}

// RespondToDMs returns the DM toggle.
func (c *Config) RespondToDMs() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Discord.RespondToDMsEnabled()
}

// AllowFrom returns the sender allowlist (empty = allow all).
func (c *Config) AllowFrom() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Discord.AllowFrom
}

// ApplyHot copies the hot fields from a freshly loaded config under lock.
// Cold fields are left untouched; differences are reported so the watcher
// can tell the operator a restart is needed.
func (c *Config) ApplyHot(next *Config) (coldChanged []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Pipeline.MaxQueueSize != next.Pipeline.MaxQueueSize {
		coldChanged = append(coldChanged, "pipeline.max_queue_size")
	}
	if c.Pipeline.JournalPath != next.Pipeline.JournalPath {
		coldChanged = append(coldChanged, "pipeline.journal_path")
	}
	if c.Telemetry != next.Telemetry {
		coldChanged = append(coldChanged, "telemetry")
	}

	c.Pipeline.RateLimitSeconds = next.Pipeline.RateLimitSeconds
	c.Pipeline.ReplyChainDepth = next.Pipeline.ReplyChainDepth
	c.Pipeline.CallTimeoutSeconds = next.Pipeline.CallTimeoutSeconds
	c.Discord.RespondToBots = next.Discord.RespondToBots
	c.Discord.RespondToDMs = next.Discord.RespondToDMs
	c.Discord.AllowFrom = next.Discord.AllowFrom

	return coldChanged
}
