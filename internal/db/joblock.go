package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dmcaguard/internal/types"
)

// Advisory lock keys for background jobs. One key per job class; the lock is
// deployment-wide, so only one process runs each job at a time.
const (
	LockKeyAbuseSweep       int64 = 7301
	LockKeyViolationArchive int64 = 7302
)

// JobLock is a session-scoped Postgres advisory lock used to keep periodic
// jobs single-flight across replicas. The lock lives on a dedicated pooled
// connection, which is held until Release.
type JobLock struct {
	pool *pgxpool.Pool
	key  int64
	conn *pgxpool.Conn
}

// NewJobLock creates a JobLock for the given key.
func NewJobLock(pool *pgxpool.Pool, key int64) *JobLock {
	return &JobLock{pool: pool, key: key}
}

// TryAcquire attempts to take the lock without blocking. Returns false when
// another process holds it.
func (l *JobLock) TryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire connection for job lock", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		conn.Release()
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the connection to the pool. Safe to call when
// the lock was never acquired.
func (l *JobLock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	// Best effort: if the unlock fails the connection close drops the
	// session lock anyway.
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}
