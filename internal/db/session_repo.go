package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dmcaguard/internal/types"
)

// MonitoringSessionRepository provides data access for the
// monitoring_sessions table.
type MonitoringSessionRepository struct {
	db DBTX
}

// NewMonitoringSessionRepository creates a new MonitoringSessionRepository
// backed by the given database connection (pool or transaction).
func NewMonitoringSessionRepository(db DBTX) *MonitoringSessionRepository {
	return &MonitoringSessionRepository{db: db}
}

const sessionColumns = `id, user_id, brand_profile_id, name, scan_interval_seconds, status, last_scan_at, created_at`

func scanSession(row pgx.Row) (*types.MonitoringSession, error) {
	var s types.MonitoringSession
	var intervalSeconds int64
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.BrandProfileID,
		&s.Name,
		&intervalSeconds,
		&s.Status,
		&s.LastScanAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ScanInterval = secondsToDuration(intervalSeconds)
	return &s, nil
}

// Create inserts a new monitoring session.
func (r *MonitoringSessionRepository) Create(ctx context.Context, s *types.MonitoringSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO monitoring_sessions (id, user_id, brand_profile_id, name, scan_interval_seconds, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		s.ID,
		s.UserID,
		s.BrandProfileID,
		s.Name,
		durationToSeconds(s.ScanInterval),
		s.Status,
		nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create monitoring session", err)
	}
	return nil
}

// GetByID retrieves a session scoped to its owner.
func (r *MonitoringSessionRepository) GetByID(ctx context.Context, id, userID string) (*types.MonitoringSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM monitoring_sessions
		 WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "monitoring session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve monitoring session", err)
	}
	return s, nil
}

// ListByUser returns the user's monitoring sessions, newest first.
func (r *MonitoringSessionRepository) ListByUser(ctx context.Context, userID string) ([]types.MonitoringSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM monitoring_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list monitoring sessions", err)
	}
	defer rows.Close()

	var out []types.MonitoringSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan monitoring session", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate monitoring sessions", err)
	}
	return out, nil
}

// UpdateStatus transitions a session between active, paused, and ended.
func (r *MonitoringSessionRepository) UpdateStatus(ctx context.Context, id, userID string, status types.SessionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitoring_sessions SET status = $1
		 WHERE id = $2 AND user_id = $3 AND status <> 'ended'`,
		status,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update session status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSession, "monitoring session not found or already ended", nil)
	}
	return nil
}
