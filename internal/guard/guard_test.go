package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/billing"
	"dmcaguard/internal/policy"
	"dmcaguard/internal/ratelimit"
	"dmcaguard/internal/types"
)

type fakeAbuse struct {
	mu         sync.Mutex
	states     map[string]types.AbuseState
	getErr     error
	recordErr  error
	violations []types.ViolationKind
	getCalls   int
}

func (f *fakeAbuse) GetState(_ context.Context, userID string) (types.AbuseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return "", f.getErr
	}
	if s, ok := f.states[userID]; ok {
		return s, nil
	}
	return types.AbuseStateClean, nil
}

func (f *fakeAbuse) RecordViolation(_ context.Context, _ string, kind types.ViolationKind, _ float64, _ string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.violations = append(f.violations, kind)
	return nil
}

type fakeUsage struct {
	snapshot types.UsageSnapshot
	err      error
}

func (f *fakeUsage) GetCurrentUsage(_ context.Context, _ string) (types.UsageSnapshot, error) {
	if f.err != nil {
		return types.UsageSnapshot{}, f.err
	}
	return f.snapshot, nil
}

type errStore struct{}

func (errStore) Increment(_ context.Context, _ string, _ time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errors.New("counter store down")
}

func testLimiter(store ratelimit.Store) *ratelimit.Limiter {
	rules := ratelimit.NewRules([]ratelimit.Rule{
		{Prefix: "/v1/takedowns", Window: time.Minute, MaxRequests: 10},
		{Prefix: "/v1", Window: time.Minute, MaxRequests: 100},
	})
	return ratelimit.NewLimiter(rules, store)
}

func newTestGuard(abuse *fakeAbuse, usage *fakeUsage, store ratelimit.Store, cfg Config) *Guard {
	authorizer := policy.NewAuthorizer(billing.NewStaticPlanRegistry())
	return New(abuse, testLimiter(store), authorizer, usage, nil, cfg, nil)
}

func basicActor() types.Actor {
	return types.Actor{
		ID:     "usr_1",
		Type:   types.ActorTypeUser,
		Plan:   types.PlanBasic,
		Status: types.AccountActive,
	}
}

func TestAuthorize_AllowsWithinAllLimits(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	usage := &fakeUsage{snapshot: types.UsageSnapshot{TakedownsThisMonth: 3}}
	g := newTestGuard(abuse, usage, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{
		Actor:    basicActor(),
		Action:   types.ActionSendTakedown,
		Endpoint: "/v1/takedowns",
	})
	assert.True(t, d.Allowed)
	assert.Equal(t, types.ReasonOK, d.ReasonCode)
}

func TestAuthorize_SuperUserSkipsEveryCheck(t *testing.T) {
	// Blocked abuse state, broken counter store, failing usage reads: none
	// of it is consulted for the bypass identity.
	abuse := &fakeAbuse{states: map[string]types.AbuseState{"usr_root": types.AbuseStateBlocked}}
	usage := &fakeUsage{err: errors.New("db down")}
	g := newTestGuard(abuse, usage, errStore{}, DefaultConfig())

	actor := basicActor()
	actor.ID = "usr_root"
	actor.IsSuperUser = true

	d := g.Authorize(context.Background(), Request{Actor: actor, Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.True(t, d.Allowed)
	assert.Zero(t, abuse.getCalls)
}

func TestAuthorize_SuspendedAccountDenied(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())

	actor := basicActor()
	actor.Status = types.AccountSuspended

	d := g.Authorize(context.Background(), Request{Actor: actor, Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonAccountBlocked, d.ReasonCode)
	assert.Zero(t, abuse.getCalls, "no state lookup needed for a suspended account")
}

func TestAuthorize_BlockedAbuseStateDenied(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{"usr_1": types.AbuseStateBlocked}}
	store := ratelimit.NewMemoryStore()
	g := newTestGuard(abuse, &fakeUsage{}, store, DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonAccountBlocked, d.ReasonCode)
	assert.Zero(t, store.Len(), "blocked users never consume a rate window")
}

func TestAuthorize_RateLimitExceededDeniesAndRecordsViolation(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	usage := &fakeUsage{snapshot: types.UsageSnapshot{}}
	g := newTestGuard(abuse, usage, ratelimit.NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	req := Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"}
	for i := 0; i < 10; i++ {
		d := g.Authorize(ctx, req)
		require.True(t, d.Allowed, "request %d of 10", i+1)
	}

	d := g.Authorize(ctx, req)
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode)
	assert.GreaterOrEqual(t, d.RetryAfterSeconds, 1)
	assert.Equal(t, []types.ViolationKind{types.ViolationRateLimitExceeded}, abuse.violations)
}

func TestAuthorize_ViolationRecordFailureDoesNotChangeDenial(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}, recordErr: errors.New("db down")}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	req := Request{Actor: basicActor(), Endpoint: "/v1/takedowns"}
	for i := 0; i < 10; i++ {
		g.Authorize(ctx, req)
	}

	d := g.Authorize(ctx, req)
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode)
}

func TestAuthorize_WarningStateShrinksCeiling(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{"usr_1": types.AbuseStateWarning}}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	// WARNING: floor(10 * 0.7) = 7 requests pass, the 8th is rejected.
	req := Request{Actor: basicActor(), Endpoint: "/v1/takedowns"}
	for i := 0; i < 7; i++ {
		d := g.Authorize(ctx, req)
		require.True(t, d.Allowed, "request %d of 7", i+1)
	}
	d := g.Authorize(ctx, req)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode)
}

func TestAuthorize_PlanLimitReached(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	// Basic allows 50 takedowns per month; the 51st is denied.
	usage := &fakeUsage{snapshot: types.UsageSnapshot{TakedownsThisMonth: 50}}
	g := newTestGuard(abuse, usage, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonPlanLimitReached, d.ReasonCode)
	assert.Zero(t, d.RetryAfterSeconds, "plan limits carry no retry hint")
}

func TestAuthorize_EmptyActionIsRateLimitOnly(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	// Usage reads must not happen for non-gated requests.
	usage := &fakeUsage{err: errors.New("db down")}
	g := newTestGuard(abuse, usage, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Endpoint: "/v1/brand-profiles"})
	assert.True(t, d.Allowed)
}

func TestAuthorize_AnonymousPlanGatedActionDenied(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{
		Actor:    types.Actor{},
		Action:   types.ActionSendTakedown,
		Endpoint: "/v1/takedowns",
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonPlanLimitReached, d.ReasonCode)
	assert.Zero(t, abuse.getCalls, "anonymous traffic has no abuse record")
}

func TestAuthorize_AnonymousHalvedCeiling(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	// Anonymous CLEAN: floor(10 * 1.0 * 0.5) = 5.
	req := Request{Actor: types.Actor{}, Endpoint: "/v1/takedowns"}
	for i := 0; i < 5; i++ {
		d := g.Authorize(ctx, req)
		require.True(t, d.Allowed, "request %d of 5", i+1)
	}
	d := g.Authorize(ctx, req)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode)
}

func TestAuthorize_AnonymousClientsGetSeparateWindows(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	// One client exhausts its anonymous allowance (floor(10 * 0.5) = 5).
	first := Request{Actor: types.Actor{}, Endpoint: "/v1/takedowns", ClientIP: "203.0.113.7"}
	for i := 0; i < 5; i++ {
		d := g.Authorize(ctx, first)
		require.True(t, d.Allowed, "request %d of 5", i+1)
	}
	d := g.Authorize(ctx, first)
	require.Equal(t, types.ReasonRateLimited, d.ReasonCode)

	// A different client starts with a fresh window.
	second := Request{Actor: types.Actor{}, Endpoint: "/v1/takedowns", ClientIP: "198.51.100.9"}
	d = g.Authorize(ctx, second)
	assert.True(t, d.Allowed, "other clients are unaffected by the first client's window")
}

func TestAuthorize_FailClosedOnAbuseStoreError(t *testing.T) {
	abuse := &fakeAbuse{getErr: errors.New("db down")}
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode, "fail-closed denials are retryable")
	assert.Equal(t, DefaultConfig().TransientRetryAfterSeconds, d.RetryAfterSeconds)
}

func TestAuthorize_FailOpenOnAbuseStoreError(t *testing.T) {
	abuse := &fakeAbuse{getErr: errors.New("db down")}
	cfg := DefaultConfig()
	cfg.FailOpen = true
	g := newTestGuard(abuse, &fakeUsage{}, ratelimit.NewMemoryStore(), cfg)

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.True(t, d.Allowed)
}

func TestAuthorize_FailClosedOnCounterStoreError(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	g := newTestGuard(abuse, &fakeUsage{}, errStore{}, DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
	assert.Equal(t, types.ReasonRateLimited, d.ReasonCode)
}

func TestAuthorize_FailClosedOnUsageReadError(t *testing.T) {
	abuse := &fakeAbuse{states: map[string]types.AbuseState{}}
	usage := &fakeUsage{err: errors.New("db down")}
	g := newTestGuard(abuse, usage, ratelimit.NewMemoryStore(), DefaultConfig())

	d := g.Authorize(context.Background(), Request{Actor: basicActor(), Action: types.ActionSendTakedown, Endpoint: "/v1/takedowns"})
	assert.False(t, d.Allowed)
}
