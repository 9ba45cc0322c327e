package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dmcaguard/internal/types"
)

// AbuseRepository provides data access for abuse scores and violation
// records. It implements the score repository consumed by the abuse service.
type AbuseRepository struct {
	db DBTX
}

// NewAbuseRepository creates a new AbuseRepository backed by the given
// database connection (pool or transaction).
func NewAbuseRepository(db DBTX) *AbuseRepository {
	return &AbuseRepository{db: db}
}

const abuseScoreColumns = `user_id, current_score, state, last_violation_at, created_at, updated_at`

func scanAbuseScore(row pgx.Row) (*types.AbuseScore, error) {
	var s types.AbuseScore
	err := row.Scan(
		&s.UserID,
		&s.CurrentScore,
		&s.State,
		&s.LastViolationAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the abuse score record for the user, or nil when the user has
// no record yet. A missing record is not an error: users with no violations
// are clean.
func (r *AbuseRepository) Get(ctx context.Context, userID string) (*types.AbuseScore, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+abuseScoreColumns+`
		 FROM abuse_scores
		 WHERE user_id = $1`,
		userID,
	)

	s, err := scanAbuseScore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve abuse score", err)
	}
	return s, nil
}

// AddScore atomically adds delta to the user's score and returns the updated
// record, creating it on first violation. The accumulation is relative in
// SQL, so concurrent writers on different connections never lose increments.
// The returned state is the stored one; callers recompute it from the
// returned score and persist transitions via SetState.
func (r *AbuseRepository) AddScore(ctx context.Context, userID string, delta float64, at time.Time) (*types.AbuseScore, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO abuse_scores (user_id, current_score, state, last_violation_at, created_at, updated_at)
		 VALUES ($1, $2, 'clean', $3, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
		   current_score = abuse_scores.current_score + EXCLUDED.current_score,
		   last_violation_at = EXCLUDED.last_violation_at,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+abuseScoreColumns,
		userID,
		delta,
		at,
	)

	s, err := scanAbuseScore(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to add abuse score", err)
	}
	return s, nil
}

// SetState updates only the stored state, leaving the score untouched.
func (r *AbuseRepository) SetState(ctx context.Context, userID string, state types.AbuseState, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE abuse_scores
		 SET state = $2, updated_at = $3
		 WHERE user_id = $1`,
		userID,
		state,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update abuse state", err)
	}
	return nil
}

// Upsert atomically creates or updates the user's score record via
// ON CONFLICT. created_at is preserved on updates.
func (r *AbuseRepository) Upsert(ctx context.Context, score *types.AbuseScore) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO abuse_scores (user_id, current_score, state, last_violation_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), COALESCE($6, NOW()))
		 ON CONFLICT (user_id) DO UPDATE SET
		   current_score = EXCLUDED.current_score,
		   state = EXCLUDED.state,
		   last_violation_at = EXCLUDED.last_violation_at,
		   updated_at = EXCLUDED.updated_at`,
		score.UserID,
		score.CurrentScore,
		score.State,
		score.LastViolationAt,
		nilIfZeroTime(score.CreatedAt),
		nilIfZeroTime(score.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert abuse score", err)
	}
	return nil
}

// AddViolation appends an immutable violation record. Metadata is stored as
// JSONB; pgx serializes the map directly.
func (r *AbuseRepository) AddViolation(ctx context.Context, v *types.Violation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO abuse_violations (id, user_id, kind, severity, reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		v.ID,
		v.UserID,
		v.Kind,
		v.Severity,
		v.Reason,
		v.Metadata,
		nilIfZeroTime(v.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert violation", err)
	}
	return nil
}

// ListScores pages through all score records ordered by user ID using keyset
// pagination. afterUserID is exclusive; pass "" for the first page.
func (r *AbuseRepository) ListScores(ctx context.Context, afterUserID string, limit int) ([]types.AbuseScore, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+abuseScoreColumns+`
		 FROM abuse_scores
		 WHERE user_id > $1
		 ORDER BY user_id
		 LIMIT $2`,
		afterUserID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list abuse scores", err)
	}
	defer rows.Close()

	var out []types.AbuseScore
	for rows.Next() {
		s, err := scanAbuseScore(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan abuse score", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate abuse scores", err)
	}
	return out, nil
}

// ListViolations returns the most recent violations for a user, newest
// first. Used by the admin review endpoint.
func (r *AbuseRepository) ListViolations(ctx context.Context, userID string, limit int) ([]types.Violation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, kind, severity, reason, metadata, created_at
		 FROM abuse_violations
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list violations", err)
	}
	defer rows.Close()

	var out []types.Violation
	for rows.Next() {
		var v types.Violation
		if err := rows.Scan(&v.ID, &v.UserID, &v.Kind, &v.Severity, &v.Reason, &v.Metadata, &v.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan violation", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate violations", err)
	}
	return out, nil
}
