package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tytohq/aurora/internal/agent"
	"github.com/tytohq/aurora/internal/bus"
	"github.com/tytohq/aurora/internal/channels/discord"
	"github.com/tytohq/aurora/internal/config"
	"github.com/tytohq/aurora/internal/guard"
	"github.com/tytohq/aurora/internal/processor"
	"github.com/tytohq/aurora/internal/store"
	"github.com/tytohq/aurora/internal/telemetry"
)

// statsInterval is how often the pipeline health snapshot is logged.
const statsInterval = 60 * time.Second

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Discord.Token == "" {
		slog.Error("no Discord token configured, set AURORA_DISCORD_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	if shutdownTelemetry != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
		slog.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "protocol", cfg.Telemetry.Protocol)
	}

	var journal processor.Journal
	if path := cfg.Pipeline.JournalPath; path != "" {
		j, err := store.Open(path)
		if err != nil {
			slog.Error("failed to open outcome journal", "path", path, "error", err)
			os.Exit(1)
		}
		defer j.Close()
		journal = j
		slog.Info("outcome journal enabled", "path", path)
	}

	stats := guard.NewStats(0)
	breaker := guard.NewBreaker(
		guard.BreakerConfig{
			FailureThreshold:    cfg.Pipeline.FailureThreshold,
			RecoveryTimeout:     time.Duration(cfg.Pipeline.RecoveryTimeoutSeconds) * time.Second,
			HalfOpenMaxAttempts: cfg.Pipeline.HalfOpenMaxAttempts,
		},
		guard.RetryConfig{
			MaxAttempts:     cfg.Pipeline.Retry.MaxAttempts,
			BaseDelay:       time.Duration(cfg.Pipeline.Retry.BaseDelaySeconds * float64(time.Second)),
			ExponentialBase: cfg.Pipeline.Retry.ExponentialBase,
			MaxDelay:        time.Duration(cfg.Pipeline.Retry.MaxDelaySeconds * float64(time.Second)),
			JitterSpread:    cfg.Pipeline.Retry.JitterSpread,
		},
		stats,
	)
	queue := bus.NewQueue(cfg.Pipeline.MaxQueueSize, cfg.RateLimit)
	invoker := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.AgentID, cfg.Agent.Token)

	proc := processor.New(processor.Deps{
		Queue:       queue,
		Breaker:     breaker,
		Stats:       stats,
		Invoker:     invoker,
		Journal:     journal,
		CallTimeout: cfg.CallTimeout,
	})

	listener, err := discord.New(cfg, proc)
	if err != nil {
		slog.Error("failed to initialize discord listener", "error", err)
		os.Exit(1)
	}
	proc.SetTyping(listener)

	if err := listener.Start(ctx); err != nil {
		slog.Error("failed to start discord listener", "error", err)
		os.Exit(1)
	}

	slog.Info("aurora pipeline starting",
		"version", Version,
		"agent_url", cfg.Agent.BaseURL,
		"agent_id", cfg.Agent.AgentID,
		"max_queue_size", cfg.Pipeline.MaxQueueSize,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return proc.Run(gctx)
	})

	g.Go(func() error {
		return config.Watch(gctx, cfgPath, cfg)
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logHealth(proc)
			}
		}
	})

	<-gctx.Done()
	slog.Info("graceful shutdown initiated")

	if err := listener.Stop(context.Background()); err != nil {
		slog.Warn("discord listener stop failed", "error", err)
	}

	// The processor loop lets an in-flight guarded call finish or hit its
	// own deadline before returning.
	if err := g.Wait(); err != nil {
		slog.Error("pipeline error", "error", err)
		os.Exit(1)
	}

	dropped := queue.Clear()
	slog.Info("aurora pipeline stopped", "dropped_events", dropped)
}

// logHealth emits the periodic pipeline snapshot. Elevated to warn when
// the trailing 5-minute error rate crosses the advisory threshold.
func logHealth(proc *processor.Processor) {
	q := proc.QueueStats()
	circuit := proc.CircuitStatus()
	report := proc.ErrorStats(0)

	attrs := []any{
		"queue_size", q.Size,
		"queue_max", q.MaxSize,
		"circuit", circuit.State,
		"calls", report.Total,
		"error_rate_pct", report.Rate,
	}
	if report.Alert {
		slog.Warn("pipeline health degraded: elevated error rate", attrs...)
		return
	}
	slog.Info("pipeline health", attrs...)
}
