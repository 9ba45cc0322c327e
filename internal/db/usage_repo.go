package db

import (
	"context"

	"dmcaguard/internal/types"
)

// UsageRepository implements the direct count queries behind usage
// accounting. Counts run against the live tables at decision time; there is
// no cached counter to drift.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new UsageRepository backed by the given
// database connection (pool or transaction).
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// CountActiveBrandProfiles counts the user's active brand profiles.
func (r *UsageRepository) CountActiveBrandProfiles(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM brand_profiles
		 WHERE user_id = $1 AND active = TRUE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count brand profiles", err)
	}
	return count, nil
}

// CountActiveMonitoringSessions counts sessions that have not ended.
func (r *UsageRepository) CountActiveMonitoringSessions(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM monitoring_sessions
		 WHERE user_id = $1 AND status <> 'ended'`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count monitoring sessions", err)
	}
	return count, nil
}

// CountTakedownsInMonth counts takedown requests created in the current
// calendar month (UTC). date_trunc keeps the boundary in the database so app
// and query clocks cannot disagree.
func (r *UsageRepository) CountTakedownsInMonth(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM takedown_requests
		 WHERE user_id = $1
		   AND created_at >= date_trunc('month', NOW() AT TIME ZONE 'utc')`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count takedowns", err)
	}
	return count, nil
}
