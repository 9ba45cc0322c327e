package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

func testRules() *Rules {
	return NewRules([]Rule{
		{Prefix: "/v1/takedowns", Window: time.Minute, MaxRequests: 10},
		{Prefix: "/v1", Window: time.Minute, MaxRequests: 100},
	})
}

func TestRules_LongestPrefixWins(t *testing.T) {
	rules := testRules()

	rule, ok := rules.Match("/v1/takedowns/abc")
	require.True(t, ok)
	assert.Equal(t, "/v1/takedowns", rule.Prefix)
	assert.Equal(t, 10, rule.MaxRequests)

	rule, ok = rules.Match("/v1/brand-profiles")
	require.True(t, ok)
	assert.Equal(t, "/v1", rule.Prefix)

	_, ok = rules.Match("/health")
	assert.False(t, ok)
}

func TestRules_EqualLengthTieBreakIsStable(t *testing.T) {
	rules := NewRules([]Rule{
		{Prefix: "/v1/aaa", Window: time.Minute, MaxRequests: 1},
		{Prefix: "/v1/bbb", Window: time.Minute, MaxRequests: 2},
	})

	// Same-length prefixes can never both match one path, but the table
	// order must survive sorting so matching is deterministic.
	rule, ok := rules.Match("/v1/aaa/x")
	require.True(t, ok)
	assert.Equal(t, 1, rule.MaxRequests)

	rule, ok = rules.Match("/v1/bbb/x")
	require.True(t, ok)
	assert.Equal(t, 2, rule.MaxRequests)
}

func TestLimiter_ExactlyNWithinWindowNeverExceeds(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateClean, false)
		require.NoError(t, err)
		require.True(t, res.Matched)
		assert.False(t, res.Exceeded, "request %d of 10 must not exceed", i)
	}

	res, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateClean, false)
	require.NoError(t, err)
	assert.True(t, res.Exceeded, "request 11 must exceed")
	assert.Equal(t, 0, res.Remaining)
}

func TestLimiter_WindowResetStartsFresh(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	limiter := NewLimiter(testRules(), store)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateClean, false)
		require.NoError(t, err)
	}

	// Advance past the reset; the next request starts a fresh window with
	// count=1 regardless of the prior count.
	now = now.Add(time.Minute + time.Second)
	res, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateClean, false)
	require.NoError(t, err)
	assert.False(t, res.Exceeded)
	assert.Equal(t, 9, res.Remaining)
}

func TestLimiter_SeverityMultiplierShrinksCeiling(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())
	ctx := context.Background()

	// WARNING: floor(10 * 0.7) = 7; the 8th request is rejected.
	for i := 1; i <= 7; i++ {
		res, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateWarning, false)
		require.NoError(t, err)
		assert.False(t, res.Exceeded, "request %d of 7 must not exceed", i)
		assert.Equal(t, 7, res.Limit)
	}
	res, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateWarning, false)
	require.NoError(t, err)
	assert.True(t, res.Exceeded)
}

func TestLimiter_BlockedRejectsFirstRequest(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())

	res, err := limiter.CheckAndIncrement(context.Background(), "usr_1", "/v1/takedowns", types.AbuseStateBlocked, false)
	require.NoError(t, err)
	assert.True(t, res.Exceeded, "multiplier 0 rejects the very first request")
	assert.Equal(t, 0, res.Limit)
}

func TestLimiter_AnonymousPenalty(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())
	ctx := context.Background()

	// Anonymous CLEAN: floor(10 * 1.0 * 0.5) = 5.
	for i := 1; i <= 5; i++ {
		res, err := limiter.CheckAndIncrement(ctx, "203.0.113.7", "/v1/takedowns", types.AbuseStateClean, true)
		require.NoError(t, err)
		assert.False(t, res.Exceeded)
	}
	res, err := limiter.CheckAndIncrement(ctx, "203.0.113.7", "/v1/takedowns", types.AbuseStateClean, true)
	require.NoError(t, err)
	assert.True(t, res.Exceeded)
}

func TestLimiter_UnmatchedEndpointPassesThrough(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())

	res, err := limiter.CheckAndIncrement(context.Background(), "usr_1", "/health", types.AbuseStateBlocked, false)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, res.Exceeded)
}

func TestLimiter_IdentitiesDoNotShareWindows(t *testing.T) {
	limiter := NewLimiter(testRules(), NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "usr_1", "/v1/takedowns", types.AbuseStateClean, false)
		require.NoError(t, err)
	}

	res, err := limiter.CheckAndIncrement(ctx, "usr_2", "/v1/takedowns", types.AbuseStateClean, false)
	require.NoError(t, err)
	assert.False(t, res.Exceeded, "a different identity gets its own window")
}

func TestMemoryStore_ConcurrentIncrementsLoseNoUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := store.Increment(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	w, err := store.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine+1, w.Count)
}

func TestMemoryStore_SweepRemovesOnlyExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.Increment(ctx, "short", 10*time.Second)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "long", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	now = now.Add(30 * time.Second)
	removed := store.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestWindow_RetryAfterFloor(t *testing.T) {
	now := time.Now()
	w := Window{ResetAt: now.Add(250 * time.Millisecond)}
	assert.Equal(t, 1, w.RetryAfterSeconds(now), "Retry-After is never below 1")

	w = Window{ResetAt: now.Add(42 * time.Second)}
	assert.Equal(t, 42, w.RetryAfterSeconds(now))
}
