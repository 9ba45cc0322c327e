package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/abuse"
)

type fakeLocker struct {
	held     bool // someone else holds the lock
	err      error
	acquires int
	releases int
}

func (f *fakeLocker) TryAcquire(context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	return !f.held, nil
}

func (f *fakeLocker) Release(context.Context) { f.releases++ }

type fakeSweeper struct {
	stats abuse.SweepStats
	err   error
	runs  int
}

func (f *fakeSweeper) MonitorAllUsers(context.Context) (abuse.SweepStats, error) {
	f.runs++
	return f.stats, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAbuseSweepJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{stats: abuse.SweepStats{Evaluated: 10, Changed: 2, Suspended: 1}}
	lock := &fakeLocker{}
	job := NewAbuseSweepJob(sweeper, lock, discardLogger())

	ran, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, sweeper.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestAbuseSweepJob_SkipsWhenLockHeld(t *testing.T) {
	sweeper := &fakeSweeper{}
	lock := &fakeLocker{held: true}
	job := NewAbuseSweepJob(sweeper, lock, discardLogger())

	ran, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, sweeper.runs)
	assert.Zero(t, lock.releases)
}

func TestAbuseSweepJob_LockErrorSurfaces(t *testing.T) {
	lock := &fakeLocker{err: errors.New("pool exhausted")}
	job := NewAbuseSweepJob(&fakeSweeper{}, lock, discardLogger())

	_, err := job.Run(context.Background())
	assert.Error(t, err)
}

func TestAbuseSweepJob_SweepErrorReleasesLock(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	lock := &fakeLocker{}
	job := NewAbuseSweepJob(sweeper, lock, discardLogger())

	ran, err := job.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, lock.releases)
}
