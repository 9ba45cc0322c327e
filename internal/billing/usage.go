package billing

import (
	"context"

	"dmcaguard/internal/types"
)

// UsageDB provides the direct count queries backing usage accounting.
// These are authoritative Direct Count queries at decision time, not cached
// counters, so a just-created resource is immediately reflected.
type UsageDB interface {
	// CountActiveBrandProfiles counts non-deleted, active brand profiles.
	CountActiveBrandProfiles(ctx context.Context, userID string) (int, error)

	// CountActiveMonitoringSessions counts sessions that are not ended.
	CountActiveMonitoringSessions(ctx context.Context, userID string) (int, error)

	// CountTakedownsInMonth counts takedown requests created in the current
	// calendar month (UTC).
	CountTakedownsInMonth(ctx context.Context, userID string) (int, error)
}

// UsageReader aggregates current usage for a user. The guard boundary reads
// exactly one snapshot per decision.
type UsageReader interface {
	GetCurrentUsage(ctx context.Context, userID string) (types.UsageSnapshot, error)
}

// usageReader implements UsageReader against the direct count queries.
type usageReader struct {
	db UsageDB
}

// NewUsageReader creates a UsageReader backed by direct count queries.
func NewUsageReader(db UsageDB) UsageReader {
	return &usageReader{db: db}
}

// GetCurrentUsage reads all three usage dimensions. Each count that fails
// aborts the snapshot; callers decide their fail-open/fail-closed policy.
func (u *usageReader) GetCurrentUsage(ctx context.Context, userID string) (types.UsageSnapshot, error) {
	profiles, err := u.db.CountActiveBrandProfiles(ctx, userID)
	if err != nil {
		return types.UsageSnapshot{}, err
	}
	sessions, err := u.db.CountActiveMonitoringSessions(ctx, userID)
	if err != nil {
		return types.UsageSnapshot{}, err
	}
	takedowns, err := u.db.CountTakedownsInMonth(ctx, userID)
	if err != nil {
		return types.UsageSnapshot{}, err
	}
	return types.UsageSnapshot{
		BrandProfiles:      profiles,
		MonitoringSessions: sessions,
		TakedownsThisMonth: takedowns,
	}, nil
}
