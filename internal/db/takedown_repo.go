package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dmcaguard/internal/types"
)

// TakedownRepository provides data access for the takedown_requests table.
type TakedownRepository struct {
	db DBTX
}

// NewTakedownRepository creates a new TakedownRepository backed by the given
// database connection (pool or transaction).
func NewTakedownRepository(db DBTX) *TakedownRepository {
	return &TakedownRepository{db: db}
}

const takedownColumns = `id, user_id, brand_profile_id, infringing_url, recipient_email, status, created_at, sent_at`

func scanTakedown(row pgx.Row) (*types.TakedownRequest, error) {
	var t types.TakedownRequest
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.BrandProfileID,
		&t.InfringingURL,
		&t.RecipientEmail,
		&t.Status,
		&t.CreatedAt,
		&t.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new takedown request in pending state.
func (r *TakedownRepository) Create(ctx context.Context, t *types.TakedownRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO takedown_requests (id, user_id, brand_profile_id, infringing_url, recipient_email, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		t.ID,
		t.UserID,
		t.BrandProfileID,
		t.InfringingURL,
		t.RecipientEmail,
		t.Status,
		nilIfZeroTime(t.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create takedown request", err)
	}
	return nil
}

// GetByID retrieves a takedown request scoped to its owner.
func (r *TakedownRepository) GetByID(ctx context.Context, id, userID string) (*types.TakedownRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+takedownColumns+`
		 FROM takedown_requests
		 WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)

	t, err := scanTakedown(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTakedown, "takedown request not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve takedown request", err)
	}
	return t, nil
}

// ListByUser returns the user's takedown requests, newest first, capped at
// limit.
func (r *TakedownRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.TakedownRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+takedownColumns+`
		 FROM takedown_requests
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list takedown requests", err)
	}
	defer rows.Close()

	var out []types.TakedownRequest
	for rows.Next() {
		t, err := scanTakedown(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan takedown request", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate takedown requests", err)
	}
	return out, nil
}

// MarkSent transitions a pending takedown to sent and stamps sent_at.
func (r *TakedownRepository) MarkSent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE takedown_requests SET status = 'sent', sent_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark takedown sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTakedown, "takedown request not found or not pending", nil)
	}
	return nil
}

// UpdateStatus records the recipient outcome (acknowledged, removed,
// rejected).
func (r *TakedownRepository) UpdateStatus(ctx context.Context, id string, status types.TakedownStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE takedown_requests SET status = $1 WHERE id = $2`,
		status,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update takedown status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTakedown, "takedown request not found", nil)
	}
	return nil
}
