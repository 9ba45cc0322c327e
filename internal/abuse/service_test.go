package abuse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

// fakeScoreRepo is an in-memory ScoreRepo for exercising the state machine
// without a database.
type fakeScoreRepo struct {
	mu              sync.Mutex
	scores          map[string]types.AbuseScore
	violations      []types.Violation
	getErr          error
	getErrLeft      int // number of Get calls that fail before succeeding
	addScoreErr     error
	addScoreErrLeft int // number of AddScore calls that fail before succeeding
	upserts         int
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{scores: make(map[string]types.AbuseScore)}
}

func (f *fakeScoreRepo) Get(_ context.Context, userID string) (*types.AbuseScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErrLeft > 0 {
		f.getErrLeft--
		return nil, f.getErr
	}
	s, ok := f.scores[userID]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (f *fakeScoreRepo) AddScore(_ context.Context, userID string, delta float64, at time.Time) (*types.AbuseScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addScoreErrLeft > 0 {
		f.addScoreErrLeft--
		return nil, f.addScoreErr
	}
	s, ok := f.scores[userID]
	if !ok {
		s = types.AbuseScore{UserID: userID, State: types.AbuseStateClean, CreatedAt: at}
	}
	s.CurrentScore += delta
	s.LastViolationAt = &at
	s.UpdatedAt = at
	f.scores[userID] = s
	cp := s
	return &cp, nil
}

func (f *fakeScoreRepo) SetState(_ context.Context, userID string, state types.AbuseState, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.scores[userID]
	s.UserID = userID
	s.State = state
	s.UpdatedAt = at
	f.scores[userID] = s
	return nil
}

func (f *fakeScoreRepo) Upsert(_ context.Context, score *types.AbuseScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.scores[score.UserID] = *score
	return nil
}

func (f *fakeScoreRepo) AddViolation(_ context.Context, v *types.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, *v)
	return nil
}

func (f *fakeScoreRepo) ListScores(_ context.Context, afterUserID string, limit int) ([]types.AbuseScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.scores))
	for id := range f.scores {
		if id > afterUserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]types.AbuseScore, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.scores[id])
	}
	return out, nil
}

type fakeGate struct {
	mu         sync.Mutex
	suspended  []string
	reinstated []string
	err        error
}

func (g *fakeGate) Suspend(_ context.Context, userID string, _ time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.suspended = append(g.suspended, userID)
	return nil
}

func (g *fakeGate) Reinstate(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reinstated = append(g.reinstated, userID)
	return nil
}

func newTestService(repo ScoreRepo, gate AccountGate) *Service {
	svc := NewService(repo, gate, nil, DefaultThresholds(), nil)
	svc.retryBase = time.Millisecond
	return svc
}

func TestThresholds_StateForScore(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, types.AbuseStateClean, th.StateForScore(0))
	assert.Equal(t, types.AbuseStateClean, th.StateForScore(2.99))
	assert.Equal(t, types.AbuseStateWarning, th.StateForScore(3))
	assert.Equal(t, types.AbuseStateWarning, th.StateForScore(5.5))
	assert.Equal(t, types.AbuseStateHighRisk, th.StateForScore(6))
	assert.Equal(t, types.AbuseStateBlocked, th.StateForScore(10))
	assert.Equal(t, types.AbuseStateBlocked, th.StateForScore(999))
}

func TestGetState_NoRecordIsClean(t *testing.T) {
	svc := newTestService(newFakeScoreRepo(), &fakeGate{})

	state, err := svc.GetState(context.Background(), "usr_new")
	require.NoError(t, err)
	assert.Equal(t, types.AbuseStateClean, state)
}

func TestGetState_PropagatesStoreError(t *testing.T) {
	repo := newFakeScoreRepo()
	repo.getErr = errors.New("db down")
	repo.getErrLeft = 1
	svc := newTestService(repo, &fakeGate{})

	_, err := svc.GetState(context.Background(), "usr_1")
	require.Error(t, err)
}

func TestRecordViolation_CreatesRecordLazily(t *testing.T) {
	repo := newFakeScoreRepo()
	svc := newTestService(repo, &fakeGate{})

	err := svc.RecordViolation(context.Background(), "usr_1", types.ViolationRateLimitExceeded, 0.5, "burst", nil)
	require.NoError(t, err)

	score := repo.scores["usr_1"]
	assert.Equal(t, 0.5, score.CurrentScore)
	assert.Equal(t, types.AbuseStateClean, score.State)
	require.Len(t, repo.violations, 1)
	assert.Equal(t, types.ViolationRateLimitExceeded, repo.violations[0].Kind)
	assert.NotEmpty(t, repo.violations[0].ID)
}

func TestRecordViolation_ScoreAccumulatesAndEscalates(t *testing.T) {
	repo := newFakeScoreRepo()
	gate := &fakeGate{}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, svc.RecordViolation(ctx, "usr_1", types.ViolationSuspiciousPattern, 1.0, "pattern", nil))
	}

	state, err := svc.GetState(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, types.AbuseStateHighRisk, state)
	assert.Empty(t, gate.suspended, "high_risk does not suspend")
}

func TestRecordViolation_BlockedSuspendsAccountOnce(t *testing.T) {
	repo := newFakeScoreRepo()
	gate := &fakeGate{}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.RecordViolation(ctx, "usr_1", types.ViolationSpamTakedowns, 1.0, "spam", nil))
	}
	// Only the transition into blocked suspends.
	require.NoError(t, svc.RecordViolation(ctx, "usr_1", types.ViolationSpamTakedowns, 1.0, "spam", nil))

	state, err := svc.GetState(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, types.AbuseStateBlocked, state)
	assert.Equal(t, []string{"usr_1"}, gate.suspended)
}

func TestRecordViolation_NegativeSeverityClampedToZero(t *testing.T) {
	repo := newFakeScoreRepo()
	svc := newTestService(repo, &fakeGate{})

	require.NoError(t, svc.RecordViolation(context.Background(), "usr_1", types.ViolationAuthFailure, -5, "weird", nil))
	assert.Equal(t, 0.0, repo.scores["usr_1"].CurrentScore)
}

func TestRecordViolation_RetriesTransientFailures(t *testing.T) {
	repo := newFakeScoreRepo()
	repo.addScoreErr = errors.New("connection reset")
	repo.addScoreErrLeft = 2
	svc := newTestService(repo, &fakeGate{})

	err := svc.RecordViolation(context.Background(), "usr_1", types.ViolationAuthFailure, 0.2, "bad token", nil)
	require.NoError(t, err, "two transient failures are within the retry budget")
	assert.Equal(t, 0.2, repo.scores["usr_1"].CurrentScore, "a retried write lands exactly once")
}

func TestRecordViolation_ExhaustedRetriesReturnError(t *testing.T) {
	repo := newFakeScoreRepo()
	repo.addScoreErr = errors.New("connection reset")
	repo.addScoreErrLeft = 100
	svc := newTestService(repo, &fakeGate{})

	err := svc.RecordViolation(context.Background(), "usr_1", types.ViolationAuthFailure, 0.2, "bad token", nil)
	require.Error(t, err)
}

func TestRecordViolation_ConcurrentWritersNeverLoseIncrements(t *testing.T) {
	repo := newFakeScoreRepo()
	svc := newTestService(repo, &fakeGate{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.RecordViolation(ctx, "usr_1", types.ViolationSuspiciousPattern, 0.1, "burst", nil))
		}()
	}
	wg.Wait()

	assert.InDelta(t, 2.0, repo.scores["usr_1"].CurrentScore, 1e-9,
		"every concurrent increment lands in the accumulated score")
	assert.Len(t, repo.violations, 20)
}

func TestForceBlockAndUnblock(t *testing.T) {
	repo := newFakeScoreRepo()
	gate := &fakeGate{}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	require.NoError(t, svc.ForceBlock(ctx, "usr_1", "manual review"))

	score := repo.scores["usr_1"]
	assert.Equal(t, float64(forcedBlockScore), score.CurrentScore)
	assert.Equal(t, types.AbuseStateBlocked, score.State)
	assert.Equal(t, []string{"usr_1"}, gate.suspended)
	require.Len(t, repo.violations, 1)
	assert.Equal(t, types.ViolationManualBlock, repo.violations[0].Kind)

	require.NoError(t, svc.Unblock(ctx, "usr_1"))
	score = repo.scores["usr_1"]
	assert.Equal(t, 0.0, score.CurrentScore)
	assert.Equal(t, types.AbuseStateClean, score.State)
	assert.Equal(t, []string{"usr_1"}, gate.reinstated)
}

func TestMonitorAllUsers_IdempotentWithNoNewViolations(t *testing.T) {
	repo := newFakeScoreRepo()
	gate := &fakeGate{}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	require.NoError(t, svc.RecordViolation(ctx, "usr_1", types.ViolationSuspiciousPattern, 4, "x", nil))
	require.NoError(t, svc.RecordViolation(ctx, "usr_2", types.ViolationSuspiciousPattern, 0.5, "x", nil))

	before := map[string]types.AbuseScore{}
	for k, v := range repo.scores {
		before[k] = v
	}
	upsertsBefore := repo.upserts

	stats, err := svc.MonitorAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 0, stats.Changed)
	assert.Equal(t, upsertsBefore, repo.upserts, "no writes when nothing changed")
	assert.Equal(t, before, repo.scores)

	// Second pass is equally a no-op.
	stats, err = svc.MonitorAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Changed)
}

func TestMonitorAllUsers_ReconcilesStaleStates(t *testing.T) {
	repo := newFakeScoreRepo()
	gate := &fakeGate{}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	// A record whose stored state lags its score (e.g. thresholds were
	// lowered since the last write).
	repo.scores["usr_stale"] = types.AbuseScore{
		UserID:       "usr_stale",
		CurrentScore: 12,
		State:        types.AbuseStateWarning,
	}

	stats, err := svc.MonitorAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Changed)
	assert.Equal(t, 1, stats.Suspended)
	assert.Equal(t, types.AbuseStateBlocked, repo.scores["usr_stale"].State)
	assert.Equal(t, []string{"usr_stale"}, gate.suspended)
}

func TestMonitorAllUsers_PagesThroughLargeSets(t *testing.T) {
	repo := newFakeScoreRepo()
	svc := newTestService(repo, &fakeGate{})

	for i := 0; i < monitorBatchSize+50; i++ {
		id := fmt.Sprintf("usr_%06d", i)
		repo.scores[id] = types.AbuseScore{UserID: id, CurrentScore: 1, State: types.AbuseStateClean}
	}

	stats, err := svc.MonitorAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitorBatchSize+50, stats.Evaluated)
}
