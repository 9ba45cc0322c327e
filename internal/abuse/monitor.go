package abuse

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dmcaguard/internal/types"
)

// monitorBatchSize bounds each page of score records pulled by the sweep.
const monitorBatchSize = 200

// monitorConcurrency bounds parallel reconciliation within one batch.
const monitorConcurrency = 4

// SweepStats summarizes one monitoring pass.
type SweepStats struct {
	Evaluated int
	Changed   int
	Suspended int
}

// MonitorAllUsers re-evaluates every persisted abuse score against the
// current thresholds and reconciles account status for blocked users. It is
// idempotent: with no new violations, a second pass changes nothing.
//
// The sweep is intended to run as a periodic single-flight job (the
// scheduler holds a deployment-wide advisory lock), so it tolerates being
// the only writer for threshold-driven transitions.
func (s *Service) MonitorAllUsers(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	after := ""

	for {
		batch, err := s.repo.ListScores(ctx, after, monitorBatchSize)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			return stats, nil
		}
		after = batch[len(batch)-1].UserID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(monitorConcurrency)

		results := make([]sweepResult, len(batch))
		for i := range batch {
			g.Go(func() error {
				res, err := s.reconcile(gctx, batch[i])
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		for _, r := range results {
			stats.Evaluated++
			if r.changed {
				stats.Changed++
			}
			if r.suspended {
				stats.Suspended++
			}
		}

		if len(batch) < monitorBatchSize {
			return stats, nil
		}
	}
}

type sweepResult struct {
	changed   bool
	suspended bool
}

// reconcile applies the threshold mapping to one score record. Writes happen
// only when the stored state disagrees with the computed one, which is what
// makes the sweep idempotent.
func (s *Service) reconcile(ctx context.Context, score types.AbuseScore) (sweepResult, error) {
	var res sweepResult

	want := s.thresholds.StateForScore(score.CurrentScore)
	if want == score.State {
		return res, nil
	}

	wasBlocked := score.State == types.AbuseStateBlocked
	score.State = want
	score.UpdatedAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, &score); err != nil {
		return res, err
	}
	res.changed = true

	s.logger.Info("abuse state reconciled",
		slog.String("user_id", score.UserID),
		slog.Float64("score", score.CurrentScore),
		slog.String("state", string(want)),
	)

	if want == types.AbuseStateBlocked && !wasBlocked {
		if err := s.gate.Suspend(ctx, score.UserID, s.now().UTC()); err != nil {
			return res, err
		}
		res.suspended = true
	}
	return res, nil
}

// RunMonitor executes MonitorAllUsers on a fixed interval until ctx is
// cancelled. Used by the monitor command; the caller is responsible for
// single-flight across the deployment.
func (s *Service) RunMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := s.now()
			stats, err := s.MonitorAllUsers(ctx)
			if err != nil {
				s.logger.Error("abuse monitoring sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			s.logger.Info("abuse monitoring sweep complete",
				slog.Int("evaluated", stats.Evaluated),
				slog.Int("changed", stats.Changed),
				slog.Int("suspended", stats.Suspended),
				slog.Duration("duration", s.now().Sub(start)),
			)
		}
	}
}
