// Package sweeper periodically removes conversation states that went idle.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/reservebot/core/logger"
)

// IdleDeleter removes states not updated since cutoff.
type IdleDeleter interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs DeleteIdleBefore on a cron schedule.
type Sweeper struct {
	store   IdleDeleter
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

// New schedules a sweep of states idle longer than ttl. schedule accepts
// standard five-field cron specs and descriptors such as "@every 1h".
func New(store IdleDeleter, schedule string, ttl time.Duration) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("sweeper: ttl must be positive")
	}
	s := &Sweeper{
		store:   store,
		ttl:     ttl,
		timeout: 30 * time.Second,
		now:     time.Now,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running scheduled sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	logger.Info(context.Background(), logger.CompSweep, "start",
		slog.Duration("ttl", s.ttl),
		slog.Int("jobs", len(s.cron.Entries())),
	)
}

// Stop halts the schedule and waits for a running sweep or ctx, whichever ends first.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep deletes idle states once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cutoff := s.now().Add(-s.ttl)
	n, err := s.store.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		logger.Error(ctx, logger.CompSweep, "sweep", logger.Failed(err)...)
		return 0, err
	}
	level := logger.Debug
	if n > 0 {
		level = logger.Info
	}
	level(ctx, logger.CompSweep, "sweep",
		slog.String("status", "ok"),
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff),
		slog.Duration("duration", logger.Took(start)),
	)
	return n, nil
}
