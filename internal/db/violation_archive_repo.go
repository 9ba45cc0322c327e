package db

import (
	"context"
	"time"

	"dmcaguard/internal/types"
)

// ViolationArchiveRepository provides the queries behind violation
// archival: old violation rows are exported to compressed archives and then
// deleted. The abuse score rows themselves are never deleted.
type ViolationArchiveRepository struct {
	db DBTX
}

// NewViolationArchiveRepository creates a new ViolationArchiveRepository
// backed by the given database connection (pool or transaction).
func NewViolationArchiveRepository(db DBTX) *ViolationArchiveRepository {
	return &ViolationArchiveRepository{db: db}
}

// ListOlderThan returns up to limit violations created before the cutoff,
// oldest first, so archival makes forward progress in bounded batches.
func (r *ViolationArchiveRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.Violation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, kind, severity, reason, metadata, created_at
		 FROM abuse_violations
		 WHERE created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list archivable violations", err)
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

// DeleteByIDs removes the given violations after they have been written to
// an archive. Returns the number of rows actually deleted.
func (r *ViolationArchiveRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM abuse_violations WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived violations", err)
	}
	return tag.RowsAffected(), nil
}
