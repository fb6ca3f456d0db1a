// Package typing keeps a platform typing indicator alive while a guarded
// call is outstanding. Indicators expire server-side (Discord: 10s), so
// the controller re-fires on a keepalive interval and auto-stops after a
// TTL to prevent stuck indicators.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	MaxDuration       time.Duration // hard TTL; auto-stop after this
	KeepaliveInterval time.Duration // re-fire cadence
	StartFn           func() error  // fires the indicator once
}

// Controller drives a single typing indicator lifecycle.
type Controller struct {
	opts Options

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

// New creates a controller; Start begins firing.
func New(opts Options) *Controller {
	return &Controller{opts: opts, done: make(chan struct{})}
}

// Start fires the indicator immediately and keeps it alive until Stop or
// the TTL. Errors are logged at debug — typing is fire-and-forget.
func (c *Controller) Start() {
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}

	go func() {
		ticker := time.NewTicker(c.opts.KeepaliveInterval)
		defer ticker.Stop()
		ttl := time.NewTimer(c.opts.MaxDuration)
		defer ttl.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ttl.C:
				c.Stop()
				return
			case <-ticker.C:
				if err := c.opts.StartFn(); err != nil {
					slog.Debug("typing keepalive failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the keepalive. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.done)
}
