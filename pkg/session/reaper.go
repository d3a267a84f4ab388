package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionstore/pkg/logger"
)

// Report summarizes one Clean pass.
type Report struct {
	Scanned  int
	Idle     int
	Absolute int
	Failed   int
}

// Deleted returns the number of removed records.
func (r Report) Deleted() int { return r.Idle + r.Absolute }

// Reaper removes expired records in bulk.
type Reaper struct {
	store   Store
	cfg     *Config
	clock   Clock
	logger  *slog.Logger
	metrics *Metrics
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperClock sets the time source.
func WithReaperClock(c Clock) ReaperOption {
	return func(r *Reaper) {
		r.clock = c
	}
}

// WithReaperLogger sets the logger.
func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.logger = l
	}
}

// WithReaperMetrics enables Prometheus counters.
func WithReaperMetrics(m *Metrics) ReaperOption {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// NewReaper creates a reaper for the timeouts the features enable.
func NewReaper(store Store, cfg *Config, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:  store,
		cfg:    cfg,
		clock:  SystemClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("session_reaper"))
	return r
}

func (r *Reaper) filter() ExpiryFilter {
	return ExpiryFilter{
		Now:      r.clock.Now(),
		Idle:     r.cfg.Features.Idle.Enabled(),
		Absolute: r.cfg.Features.Absolute.Enabled(),
	}
}

// Clean deletes every record that is expired now. A failure to list is
// returned; a failure on a single record is logged and counted.
func (r *Reaper) Clean(ctx context.Context) (Report, error) {
	var rep Report
	f := r.filter()
	if !f.Enabled() {
		return rep, nil
	}

	ids, err := r.store.ExpiredIDs(ctx, f)
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			r.record(rep)
			return rep, err
		}
		reason, err := r.store.DeleteIfExpired(ctx, id, f)
		if err != nil {
			rep.Failed++
			r.logger.ErrorContext(ctx, "failed to delete expired session",
				logger.SessionID(id),
				logger.Error(err),
			)
			continue
		}
		switch reason {
		case ExpiryIdle:
			rep.Idle++
		case ExpiryAbsolute:
			rep.Absolute++
		}
	}

	r.record(rep)
	r.logger.InfoContext(ctx, "expired sessions removed",
		slog.Int("scanned", rep.Scanned),
		slog.Int("idle", rep.Idle),
		slog.Int("absolute", rep.Absolute),
		slog.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (r *Reaper) record(rep Report) {
	r.metrics.reaped(ExpiryIdle, rep.Idle)
	r.metrics.reaped(ExpiryAbsolute, rep.Absolute)
	r.metrics.reaperFailed(rep.Failed)
}

// Run calls Clean immediately and then every interval until ctx is done.
// Clean errors are logged and do not stop the loop.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Clean(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "session cleanup failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
