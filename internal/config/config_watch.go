package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads hot config fields when the file changes. Cold fields are
// reported and ignored. Blocks until ctx is cancelled.
//
// Editors often replace the file (rename+create) instead of writing in
// place, so the parent directory is watched rather than the file itself.
func Watch(ctx context.Context, path string, cfg *Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	// Debounce bursts of write events from a single save.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)

		case <-pending:
			pending = nil
			next, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			cold := cfg.ApplyHot(next)
			slog.Info("config reloaded",
				"rate_limit_seconds", next.Pipeline.RateLimitSeconds,
				"reply_chain_depth", next.Pipeline.ReplyChainDepth,
				"call_timeout_seconds", next.Pipeline.CallTimeoutSeconds,
			)
			if len(cold) > 0 {
				slog.Warn("cold config fields changed, restart required to apply", "fields", cold)
			}
		}
	}
}
