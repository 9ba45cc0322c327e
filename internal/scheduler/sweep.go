// Package scheduler implements the background jobs for the DMCA Guard
// platform: the periodic abuse state sweep and violation archival. Jobs are
// safe to run from multiple instances; each takes a Postgres advisory lock
// and skips the run when another instance holds it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dmcaguard/internal/abuse"
)

// Sweeper re-evaluates persisted abuse scores. Implemented by abuse.Service.
type Sweeper interface {
	MonitorAllUsers(ctx context.Context) (abuse.SweepStats, error)
}

// Locker is a single-holder job lock. Implemented by db.JobLock.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// AbuseSweepJob runs the abuse monitor sweep under an advisory lock so only
// one instance reconciles scores at a time.
type AbuseSweepJob struct {
	sweeper Sweeper
	lock    Locker
	logger  *slog.Logger
}

// NewAbuseSweepJob creates a new AbuseSweepJob.
func NewAbuseSweepJob(sweeper Sweeper, lock Locker, logger *slog.Logger) *AbuseSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AbuseSweepJob{sweeper: sweeper, lock: lock, logger: logger}
}

// Run performs one sweep. Returns (false, nil) when another instance holds
// the lock; that is not an error, the other instance is doing the work.
func (j *AbuseSweepJob) Run(ctx context.Context) (bool, error) {
	acquired, err := j.lock.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquiring abuse sweep lock: %w", err)
	}
	if !acquired {
		j.logger.InfoContext(ctx, "abuse sweep lock held elsewhere, skipping")
		return false, nil
	}
	defer j.lock.Release(ctx)

	start := time.Now()
	stats, err := j.sweeper.MonitorAllUsers(ctx)
	if err != nil {
		return true, fmt.Errorf("abuse sweep: %w", err)
	}

	j.logger.InfoContext(ctx, "abuse sweep complete",
		"evaluated", stats.Evaluated,
		"changed", stats.Changed,
		"suspended", stats.Suspended,
		"duration", time.Since(start).String(),
	)
	return true, nil
}

// RunPeriodic runs the sweep every interval until the context is cancelled.
// Errors are logged, not returned; one bad sweep must not stop the loop.
func (j *AbuseSweepJob) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "abuse sweep failed", "error", err)
			}
		}
	}
}
