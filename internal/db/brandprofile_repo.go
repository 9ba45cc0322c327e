package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dmcaguard/internal/types"
)

// BrandProfileRepository provides data access for the brand_profiles table.
type BrandProfileRepository struct {
	db DBTX
}

// NewBrandProfileRepository creates a new BrandProfileRepository backed by
// the given database connection (pool or transaction).
func NewBrandProfileRepository(db DBTX) *BrandProfileRepository {
	return &BrandProfileRepository{db: db}
}

const brandProfileColumns = `id, user_id, brand_name, official_urls, keywords, active, created_at, updated_at`

func scanBrandProfile(row pgx.Row) (*types.BrandProfile, error) {
	var p types.BrandProfile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.BrandName,
		&p.OfficialURLs,
		&p.Keywords,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new brand profile. Returns ErrCodeConflictDuplicate if
// the user already has an active profile with the same brand name.
func (r *BrandProfileRepository) Create(ctx context.Context, p *types.BrandProfile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO brand_profiles (id, user_id, brand_name, official_urls, keywords, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($7, NOW()))`,
		p.ID,
		p.UserID,
		p.BrandName,
		p.OfficialURLs,
		p.Keywords,
		p.Active,
		nilIfZeroTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictDuplicate, "brand profile already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create brand profile", err)
	}
	return nil
}

// GetByID retrieves a brand profile scoped to its owner.
func (r *BrandProfileRepository) GetByID(ctx context.Context, id, userID string) (*types.BrandProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+brandProfileColumns+`
		 FROM brand_profiles
		 WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)

	p, err := scanBrandProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundBrandProfile, "brand profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve brand profile", err)
	}
	return p, nil
}

// ListByUser returns the user's brand profiles, newest first.
func (r *BrandProfileRepository) ListByUser(ctx context.Context, userID string) ([]types.BrandProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+brandProfileColumns+`
		 FROM brand_profiles
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list brand profiles", err)
	}
	defer rows.Close()

	var out []types.BrandProfile
	for rows.Next() {
		p, err := scanBrandProfile(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan brand profile", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate brand profiles", err)
	}
	return out, nil
}

// Deactivate marks the profile inactive. Inactive profiles stop counting
// against the plan limit and are skipped by monitoring.
func (r *BrandProfileRepository) Deactivate(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE brand_profiles SET active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND active = TRUE`,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate brand profile", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundBrandProfile, "brand profile not found", nil)
	}
	return nil
}
