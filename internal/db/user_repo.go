package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dmcaguard/internal/types"
)

// UserRepository provides data access for the users table. It backs both the
// authentication middleware (API-key lookup) and the abuse machinery's
// account gate (suspend/reinstate).
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.email, u.name, u.plan, u.status, u.is_super_user,
	u.stripe_customer_id, u.created_at, u.updated_at, u.suspended_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns. Uses nullable
// scan targets for columns that may be NULL (name, stripe_customer_id).
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		name             *string
		stripeCustomerID *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&name,
		&u.Plan,
		&u.Status,
		&u.IsSuperUser,
		&stripeCustomerID,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.SuspendedAt,
	)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	if stripeCustomerID != nil {
		u.StripeCustomerID = *stripeCustomerID
	}
	return &u, nil
}

// GetByID retrieves a user by their ID. Returns ErrCodeNotFoundUser if no
// user exists (deleted accounts included).
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.id = $1 AND u.status <> 'deleted'`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByAPIKeyHash retrieves the user owning the given SHA-256 API key hash.
// The raw key is never stored; the middleware hashes the presented key and
// looks it up here. Returns ErrCodeAuthTokenInvalid when no active key
// matches.
func (r *UserRepository) GetByAPIKeyHash(ctx context.Context, keyHash string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 JOIN api_keys k ON k.user_id = u.id
		 WHERE k.key_hash = $1 AND k.revoked_at IS NULL AND u.status <> 'deleted'`,
		keyHash,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API key", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by API key", err)
	}
	return u, nil
}

// Create inserts a new user record. Returns ErrCodeConflictDuplicate if the
// email already exists (unique constraint on users.email).
func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, plan, status, is_super_user, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($7, NOW()))`,
		user.ID,
		user.Email,
		nilIfEmpty(user.Name),
		user.Plan,
		user.Status,
		user.IsSuperUser,
		nilIfZeroTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictDuplicate, "user already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// Suspend marks the account suspended at the given time. Idempotent: an
// already-suspended account keeps its original suspended_at.
func (r *UserRepository) Suspend(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET status = 'suspended',
		 suspended_at = COALESCE(suspended_at, $1), updated_at = NOW()
		 WHERE id = $2 AND status <> 'deleted'`,
		at,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to suspend user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// Reinstate reactivates a suspended account and clears suspended_at.
func (r *UserRepository) Reinstate(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET status = 'active', suspended_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status <> 'deleted'`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reinstate user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdatePlan sets the user's plan tier. Called by the Stripe webhook handler
// after a subscription change is confirmed.
func (r *UserRepository) UpdatePlan(ctx context.Context, userID string, plan types.PlanTier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW()
		 WHERE id = $2 AND status <> 'deleted'`,
		plan,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// GetStripeCustomerID returns the Stripe customer ID recorded for the user,
// or "" when none has been set yet. Returns ErrCodeNotFoundUser if the user
// does not exist.
func (r *UserRepository) GetStripeCustomerID(ctx context.Context, userID string) (string, error) {
	row := r.db.QueryRow(ctx,
		`SELECT u.stripe_customer_id
		 FROM users u
		 WHERE u.id = $1 AND u.status <> 'deleted'`,
		userID,
	)

	var customerID *string
	if err := row.Scan(&customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve stripe customer id", err)
	}
	if customerID == nil {
		return "", nil
	}
	return *customerID, nil
}

// SetStripeCustomerID records the Stripe customer backing this account.
// Written once when the first checkout session is created.
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $1, updated_at = NOW()
		 WHERE id = $2 AND status <> 'deleted'`,
		customerID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set stripe customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// GetByStripeCustomerID resolves a Stripe customer back to the local user.
// Used by the webhook handler, where events only carry the customer ID.
func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.stripe_customer_id = $1 AND u.status <> 'deleted'`,
		customerID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user for stripe customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by stripe customer", err)
	}
	return u, nil
}
