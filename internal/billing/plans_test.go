package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

func TestStaticPlanRegistry_KnownTiers(t *testing.T) {
	reg := NewStaticPlanRegistry()

	free := reg.GetLimits(types.PlanFree)
	assert.Equal(t, 5, free.BrandProfiles)
	assert.Equal(t, 1, free.MonitoringSessions)
	assert.Equal(t, 5, free.TakedownsPerMonth)

	basic := reg.GetLimits(types.PlanBasic)
	assert.Equal(t, 5, basic.BrandProfiles)
	assert.Equal(t, 10, basic.MonitoringSessions)
	assert.Equal(t, 50, basic.TakedownsPerMonth)

	premium := reg.GetLimits(types.PlanPremium)
	assert.Equal(t, -1, premium.BrandProfiles, "premium brand profiles are unlimited")

	enterprise := reg.GetLimits(types.PlanEnterprise)
	assert.Equal(t, -1, enterprise.BrandProfiles)
	assert.Equal(t, -1, enterprise.MonitoringSessions)
	assert.Equal(t, -1, enterprise.TakedownsPerMonth)
}

func TestStaticPlanRegistry_UnknownTierDegradesToFree(t *testing.T) {
	reg := NewStaticPlanRegistry()

	got := reg.GetLimits(types.PlanTier("platinum"))
	assert.Equal(t, reg.GetLimits(types.PlanFree), got)

	plan := reg.GetPlan(types.PlanTier(""))
	assert.Equal(t, types.PlanFree, plan.Tier)
}

func TestStaticPlanRegistry_PlanRecords(t *testing.T) {
	reg := NewStaticPlanRegistry()

	basic := reg.GetPlan(types.PlanBasic)
	assert.Equal(t, "Basic", basic.DisplayName)
	assert.Equal(t, int64(2900), basic.PriceCents)
	assert.Equal(t, "usd", basic.Currency)
	assert.Equal(t, types.IntervalMonthly, basic.Interval)

	super := reg.GetPlan(types.PlanSuperUser)
	assert.Equal(t, int64(0), super.PriceCents)
	assert.Equal(t, -1, super.Limits.TakedownsPerMonth)
}

// --- UsageReader ---

type mockUsageDB struct {
	mock.Mock
}

func (m *mockUsageDB) CountActiveBrandProfiles(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageDB) CountActiveMonitoringSessions(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageDB) CountTakedownsInMonth(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestUsageReader_GetCurrentUsage(t *testing.T) {
	db := new(mockUsageDB)
	db.On("CountActiveBrandProfiles", mock.Anything, "usr_1").Return(3, nil)
	db.On("CountActiveMonitoringSessions", mock.Anything, "usr_1").Return(2, nil)
	db.On("CountTakedownsInMonth", mock.Anything, "usr_1").Return(17, nil)

	reader := NewUsageReader(db)
	snap, err := reader.GetCurrentUsage(context.Background(), "usr_1")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.BrandProfiles)
	assert.Equal(t, 2, snap.MonitoringSessions)
	assert.Equal(t, 17, snap.TakedownsThisMonth)
	db.AssertExpectations(t)
}

func TestUsageReader_CountErrorAborts(t *testing.T) {
	db := new(mockUsageDB)
	db.On("CountActiveBrandProfiles", mock.Anything, "usr_1").
		Return(0, errors.New("connection refused"))

	reader := NewUsageReader(db)
	_, err := reader.GetCurrentUsage(context.Background(), "usr_1")
	require.Error(t, err)
	db.AssertExpectations(t)
}
