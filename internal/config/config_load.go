package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			BaseURL: "http://localhost:8283",
			AgentID: "default",
		},
		Pipeline: PipelineConfig{
			MaxQueueSize:           50,
			RateLimitSeconds:       2.0,
			ReplyChainDepth:        5,
			CallTimeoutSeconds:     120,
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 60,
			HalfOpenMaxAttempts:    3,
			Retry: RetryConfig{
				MaxAttempts:      3,
				BaseDelaySeconds: 1.0,
				ExponentialBase:  2.0,
				MaxDelaySeconds:  60.0,
				JitterSpread:     0.25,
			},
		},
		Discord: DiscordConfig{
			IngressPerMinute: 30,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "aurora",
		},
	}
}

// Load reads config from a JSON5 file, overlays env vars, then clamps
// values to their documented ranges. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.clamp()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. Secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AURORA_DISCORD_TOKEN", &c.Discord.Token)
	envStr("AURORA_AGENT_TOKEN", &c.Agent.Token)
	envStr("AURORA_AGENT_URL", &c.Agent.BaseURL)
	envStr("AURORA_AGENT_ID", &c.Agent.AgentID)
	envStr("AURORA_JOURNAL_PATH", &c.Pipeline.JournalPath)

	envStr("AURORA_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AURORA_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AURORA_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AURORA_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AURORA_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	if v := os.Getenv("AURORA_RATE_LIMIT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Pipeline.RateLimitSeconds = f
		}
	}
	if v := os.Getenv("AURORA_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.MaxQueueSize = n
		}
	}
}

// clamp enforces the documented ranges at the boundary, warning on
// out-of-range values rather than failing startup.
func (c *Config) clamp() {
	clampInt := func(name string, v *int, lo, hi int) {
		if *v < lo || *v > hi {
			n := min(max(*v, lo), hi)
			slog.Warn("config value out of range, clamped", "field", name, "value", *v, "clamped", n)
			*v = n
		}
	}
	clampFloat := func(name string, v *float64, lo, hi float64) {
		if *v < lo || *v > hi {
			n := min(max(*v, lo), hi)
			slog.Warn("config value out of range, clamped", "field", name, "value", *v, "clamped", n)
			*v = n
		}
	}

	clampInt("pipeline.reply_chain_depth", &c.Pipeline.ReplyChainDepth, 1, 10)
	clampFloat("pipeline.rate_limit_seconds", &c.Pipeline.RateLimitSeconds, 0.5, 10)
	clampInt("pipeline.max_queue_size", &c.Pipeline.MaxQueueSize, 10, 200)
	clampInt("pipeline.call_timeout_seconds", &c.Pipeline.CallTimeoutSeconds, 10, 300)

	if c.Pipeline.FailureThreshold < 1 {
		c.Pipeline.FailureThreshold = 5
	}
	if c.Pipeline.RecoveryTimeoutSeconds < 1 {
		c.Pipeline.RecoveryTimeoutSeconds = 60
	}
	if c.Pipeline.HalfOpenMaxAttempts < 1 {
		c.Pipeline.HalfOpenMaxAttempts = 3
	}
	if c.Pipeline.Retry.MaxAttempts < 1 {
		c.Pipeline.Retry.MaxAttempts = 3
	}
	if c.Pipeline.Retry.ExponentialBase <= 1 {
		c.Pipeline.Retry.ExponentialBase = 2.0
	}
	if c.Pipeline.Retry.JitterSpread < 0 || c.Pipeline.Retry.JitterSpread >= 1 {
		c.Pipeline.Retry.JitterSpread = 0.25
	}
	if c.Discord.IngressPerMinute <= 0 {
		c.Discord.IngressPerMinute = 30
	}
}
