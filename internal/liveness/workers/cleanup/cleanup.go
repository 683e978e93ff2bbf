// Package cleanup evicts abandoned blink sessions. A client that walks away
// mid-challenge leaves a session behind; without eviction the session map
// grows without bound.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionStore exposes the store operations the sweeper needs.
type SessionStore interface {
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// Gauge receives the live session count after each sweep.
type Gauge interface {
	Set(v float64)
}

// Worker periodically removes blink sessions idle longer than the cutoff.
type Worker struct {
	store      SessionStore
	interval   time.Duration
	idleCutoff time.Duration
	logger     *slog.Logger
	gauge      Gauge
	nowFn      func() time.Time
}

// Option configures the Worker.
type Option func(*Worker)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithIdleCutoff overrides how long a session may sit idle before eviction.
func WithIdleCutoff(cutoff time.Duration) Option {
	return func(w *Worker) {
		if cutoff > 0 {
			w.idleCutoff = cutoff
		}
	}
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithGauge wires a metrics gauge updated with the live session count.
func WithGauge(g Gauge) Option {
	return func(w *Worker) {
		w.gauge = g
	}
}

// withNow injects the clock for tests.
func withNow(nowFn func() time.Time) Option {
	return func(w *Worker) {
		w.nowFn = nowFn
	}
}

// New constructs a Worker with the required store and options applied.
func New(store SessionStore, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	w := &Worker{
		store:      store,
		interval:   time.Minute,
		idleCutoff: 6 * time.Second,
		logger:     slog.Default(),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start runs sweeps periodically until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "blink session sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep and reports how many sessions it evicted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.nowFn().Add(-w.idleCutoff)

	deleted, err := w.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle blink sessions: %w", err)
	}
	if deleted > 0 {
		w.logger.InfoContext(ctx, "evicted idle blink sessions", "count", deleted)
	}

	if w.gauge != nil {
		if n, err := w.store.Count(ctx); err == nil {
			w.gauge.Set(float64(n))
		}
	}

	return deleted, nil
}
