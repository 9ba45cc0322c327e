// Package abuse implements the per-user abuse score state machine.
// Violations accumulate into a score; configurable thresholds map the score
// onto an escalating state (clean, warning, high_risk, blocked) that drives
// rate-limit severity and, at blocked, account suspension.
package abuse

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"

	"dmcaguard/internal/types"
)

// forcedBlockScore is the score assigned by an explicit admin block. It is
// far above any threshold so decaying policies could never silently unblock.
const forcedBlockScore = 999

// Thresholds are the score boundaries for state transitions.
// A score s maps to: blocked if s >= Blocked, high_risk if s >= HighRisk,
// warning if s >= Warning, clean otherwise. Warning < HighRisk < Blocked.
type Thresholds struct {
	Warning  float64
	HighRisk float64
	Blocked  float64
}

// DefaultThresholds are the production policy constants. With severities in
// [0,1], roughly: three serious violations reach warning, six high_risk, ten
// blocked.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 3, HighRisk: 6, Blocked: 10}
}

// StateForScore maps a score onto its abuse state.
func (t Thresholds) StateForScore(score float64) types.AbuseState {
	switch {
	case score >= t.Blocked:
		return types.AbuseStateBlocked
	case score >= t.HighRisk:
		return types.AbuseStateHighRisk
	case score >= t.Warning:
		return types.AbuseStateWarning
	default:
		return types.AbuseStateClean
	}
}

// ScoreRepo is the persistence access for abuse scores and violations.
type ScoreRepo interface {
	// Get returns the abuse score for the user, or nil when the user has no
	// record yet (no violations ever recorded).
	Get(ctx context.Context, userID string) (*types.AbuseScore, error)

	// AddScore atomically adds delta to the user's score, creating the
	// record on first violation, and returns the updated record. The
	// increment must be relative at the store so concurrent writers never
	// lose each other's updates.
	AddScore(ctx context.Context, userID string, delta float64, at time.Time) (*types.AbuseScore, error)

	// SetState updates only the stored state, leaving the score untouched.
	SetState(ctx context.Context, userID string, state types.AbuseState, at time.Time) error

	// Upsert overwrites the user's score record. Reserved for the absolute
	// writes (admin block/unblock, sweep reconciliation); violation
	// accumulation goes through AddScore.
	Upsert(ctx context.Context, score *types.AbuseScore) error

	// AddViolation appends an immutable violation record.
	AddViolation(ctx context.Context, v *types.Violation) error

	// ListScores pages through all score records ordered by user ID.
	// afterUserID is exclusive; pass "" for the first page.
	ListScores(ctx context.Context, afterUserID string, limit int) ([]types.AbuseScore, error)
}

// AccountGate flips the account status when the abuse state crosses into or
// out of blocked.
type AccountGate interface {
	Suspend(ctx context.Context, userID string, at time.Time) error
	Reinstate(ctx context.Context, userID string) error
}

// EventSink receives fire-and-forget violation events for later review.
// Failures are logged, never propagated; auditing must not block enforcement.
type EventSink interface {
	PublishViolation(ctx context.Context, ev types.ViolationEvent) error
}

// Service is the abuse state machine.
type Service struct {
	repo       ScoreRepo
	gate       AccountGate
	sink       EventSink
	thresholds Thresholds
	logger     *slog.Logger

	breaker *gobreaker.CircuitBreaker[*types.AbuseScore]

	// retryBase and retryMax bound the exponential backoff applied to
	// transient persistence failures during RecordViolation.
	retryBase  time.Duration
	maxRetries uint64

	now func() time.Time
}

// NewService creates the abuse service. sink may be nil (no audit events).
func NewService(repo ScoreRepo, gate AccountGate, sink EventSink, thresholds Thresholds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*types.AbuseScore](gobreaker.Settings{
		Name:        "abuse-score-read",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
	})
	return &Service{
		repo:       repo,
		gate:       gate,
		sink:       sink,
		thresholds: thresholds,
		logger:     logger,
		breaker:    breaker,
		retryBase:  100 * time.Millisecond,
		maxRetries: 3,
		now:        time.Now,
	}
}

// GetState returns the user's current abuse state. Users with no score
// record are clean. Reads go through a circuit breaker so a struggling
// database sheds load quickly; the caller decides fail-open or fail-closed
// when an error comes back.
func (s *Service) GetState(ctx context.Context, userID string) (types.AbuseState, error) {
	score, err := s.breaker.Execute(func() (*types.AbuseScore, error) {
		return s.repo.Get(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	if score == nil {
		return types.AbuseStateClean, nil
	}
	return score.State, nil
}

// RecordViolation adds severity to the user's score, persists the violation,
// recomputes the state, and suspends the account on a transition into
// blocked. The score increment is a single relative write at the store, so
// concurrent violations from different replicas all land. Each persistence
// step is retried independently with bounded exponential backoff; a retry
// never replays an already-applied increment. If retries exhaust, the error
// is returned and the caller applies its fail policy.
func (s *Service) RecordViolation(ctx context.Context, userID string, kind types.ViolationKind, severity float64, reason string, metadata map[string]any) error {
	if severity < 0 {
		severity = 0
	}
	now := s.now().UTC()

	var score *types.AbuseScore
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		score, err = s.repo.AddScore(ctx, userID, severity, now)
		return err
	})
	if err != nil {
		return err
	}

	oldState := score.State
	newScore := score.CurrentScore
	newState := s.thresholds.StateForScore(newScore)
	if newState != oldState {
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.repo.SetState(ctx, userID, newState, now)
		})
		if err != nil {
			// The score is in; the monitoring sweep reconciles the state on
			// its next pass.
			s.logger.Error("failed to persist abuse state transition",
				slog.String("user_id", userID),
				slog.String("state", string(newState)),
				slog.String("error", err.Error()),
			)
		}
	}

	v := &types.Violation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Severity:  severity,
		Reason:    reason,
		Metadata:  metadata,
		CreatedAt: now,
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.repo.AddViolation(ctx, v)
	})
	if err != nil {
		return err
	}

	if newState == types.AbuseStateBlocked && oldState != types.AbuseStateBlocked {
		if err := s.gate.Suspend(ctx, userID, s.now().UTC()); err != nil {
			// The score is already persisted; the monitoring sweep will
			// reconcile the account status on its next pass.
			s.logger.Error("failed to suspend blocked account",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Warn("account blocked for abuse",
				slog.String("user_id", userID),
				slog.Float64("score", newScore),
			)
		}
	}

	s.publish(types.ViolationEvent{
		EventID:    uuid.New().String(),
		UserID:     userID,
		Kind:       kind,
		Severity:   severity,
		Reason:     reason,
		State:      newState,
		Score:      newScore,
		Metadata:   metadata,
		OccurredAt: s.now().UTC(),
	})
	return nil
}

// withRetry runs op with bounded exponential backoff on any error. Steps are
// retried one at a time; callers must keep each op idempotent on its own.
func (s *Service) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// ForceBlock is the admin escape hatch: score jumps to 999, state to
// blocked, and the account is suspended immediately. There is no automatic
// decay; only Unblock reverses this.
func (s *Service) ForceBlock(ctx context.Context, userID, reason string) error {
	now := s.now().UTC()
	score := &types.AbuseScore{
		UserID:          userID,
		CurrentScore:    forcedBlockScore,
		State:           types.AbuseStateBlocked,
		LastViolationAt: &now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, score); err != nil {
		return err
	}
	if err := s.repo.AddViolation(ctx, &types.Violation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      types.ViolationManualBlock,
		Severity:  forcedBlockScore,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	if err := s.gate.Suspend(ctx, userID, now); err != nil {
		return err
	}
	s.publish(types.ViolationEvent{
		EventID:    uuid.New().String(),
		UserID:     userID,
		Kind:       types.ViolationManualBlock,
		Severity:   forcedBlockScore,
		Reason:     reason,
		State:      types.AbuseStateBlocked,
		Score:      forcedBlockScore,
		OccurredAt: now,
	})
	return nil
}

// Unblock resets the user's score and state and reinstates the account.
// Admin-only; scores never decay on their own.
func (s *Service) Unblock(ctx context.Context, userID string) error {
	now := s.now().UTC()
	score := &types.AbuseScore{
		UserID:       userID,
		CurrentScore: 0,
		State:        types.AbuseStateClean,
		UpdatedAt:    now,
	}
	if err := s.repo.Upsert(ctx, score); err != nil {
		return err
	}
	return s.gate.Reinstate(ctx, userID)
}

// publish sends the event to the sink without blocking the caller. Sink
// failures are logged and dropped.
func (s *Service) publish(ev types.ViolationEvent) {
	if s.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sink.PublishViolation(ctx, ev); err != nil {
			s.logger.Error("failed to publish violation event",
				slog.String("user_id", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// SetNowFunc overrides the clock. Tests only.
func (s *Service) SetNowFunc(now func() time.Time) { s.now = now }
