package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

func userRow(id string, plan types.PlanTier, status types.AccountStatus) *mockRow {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = id                          // id
			*dest[1].(*string) = "owner@example.com"         // email
			n := "Brand Owner"                               // name (nullable)
			*dest[2].(**string) = &n
			*dest[3].(*types.PlanTier) = plan                // plan
			*dest[4].(*types.AccountStatus) = status         // status
			*dest[5].(*bool) = false                         // is_super_user
			*dest[6].(**string) = nil                        // stripe_customer_id
			*dest[7].(*time.Time) = now                      // created_at
			*dest[8].(*time.Time) = now                      // updated_at
			*dest[9].(**time.Time) = nil                     // suspended_at
			return nil
		},
	}
}

func TestUserRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"usr_1"}).
		Return(userRow("usr_1", types.PlanBasic, types.AccountActive))

	user, err := repo.GetByID(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Brand Owner", user.Name)
	assert.Equal(t, types.PlanBasic, user.Plan)
	assert.Equal(t, types.AccountActive, user.Status)
	assert.False(t, user.IsSuperUser)

	db.AssertExpectations(t)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"usr_missing"}).Return(row)

	_, err := repo.GetByID(ctx, "usr_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_GetByAPIKeyHash_InvalidKey(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"deadbeef"}).Return(row)

	_, err := repo.GetByAPIKeyHash(ctx, "deadbeef")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestUserRepository_Suspend_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Suspend(context.Background(), "usr_1", time.Now().UTC())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUserRepository_Suspend_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Suspend(context.Background(), "usr_missing", time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &types.User{
		ID:    "usr_1",
		Email: "owner@example.com",
		Plan:  types.PlanFree,
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictDuplicate, appErr.Code)
}

func TestUserRepository_UpdatePlan_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{types.PlanPremium, "usr_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdatePlan(ctx, "usr_1", types.PlanPremium)
	require.NoError(t, err)
	db.AssertExpectations(t)
}
