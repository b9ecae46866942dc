// Package scheduler runs synchronization cycles on a fixed wall-clock
// interval, one at a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller runs one synchronization cycle. Implemented by engine.Engine.
type Poller interface {
	Poll(ctx context.Context) error
}

// Runner invokes a Poller at a fixed interval. Cycles are serialized by
// construction: they run inline in the Start loop, and ticks that fire
// while a cycle is still running are dropped (not queued) and logged.
//
// A cycle error is logged and absorbed; the next tick retries from the
// same checkpoint position. Only shutdown stops the runner.
type Runner struct {
	poller   Poller
	interval time.Duration

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a runner with the given cycle interval.
func New(poller Poller, interval time.Duration) *Runner {
	return &Runner{poller: poller, interval: interval}
}

// Start begins the polling loop. One cycle runs immediately, then one per
// interval. Blocks until the context is cancelled or Stop is called;
// returns nil on graceful shutdown. An in-flight cycle always finishes
// before Start returns.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.stopCh = stopCh
	r.doneCh = doneCh
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		close(doneCh)
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped by context")
			return nil
		case <-stopCh:
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			r.cycle(ctx)
			r.dropMissedTicks(ticker)
		}
	}
}

// Stop gracefully stops the runner and waits for the loop to exit.
// Safe to call from multiple goroutines: the first caller closes the stop
// channel, the rest just wait for the loop to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.stopCh = nil // claimed; later callers only wait
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	<-doneCh
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunOnce executes a single cycle outside the loop. Used for manual
// triggering and tests. Callers must not race it with Start.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.poller.Poll(ctx)
}

func (r *Runner) cycle(ctx context.Context) {
	start := time.Now()
	if err := r.poller.Poll(ctx); err != nil {
		slog.Error("cycle failed", "error", err, "elapsed", time.Since(start))
		return
	}
	slog.Debug("cycle finished", "elapsed", time.Since(start))
}

// dropMissedTicks discards ticks that accumulated while a cycle overran
// the interval, so delayed cycles are skipped rather than queued.
func (r *Runner) dropMissedTicks(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			slog.Warn("cycle overran interval, tick skipped", "interval", r.interval)
		default:
			return
		}
	}
}
