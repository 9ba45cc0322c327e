package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"dmcaguard/internal/types"
)

// ArchiveDB defines the database operations the archive job needs.
// Implemented by db.ViolationArchiveRepository.
type ArchiveDB interface {
	// ListOlderThan returns violations created before cutoff, oldest first.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.Violation, error)

	// DeleteByIDs removes violations by ID and returns the deleted count.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ViolationArchiveJob moves violations past the retention window out of
// Postgres into compressed JSONL files. The score rows stay; only the raw
// violation events are archived.
type ViolationArchiveJob struct {
	db        ArchiveDB
	lock      Locker
	dir       string
	retention time.Duration
	batchSize int
	logger    *slog.Logger

	nowFunc func() time.Time
}

// NewViolationArchiveJob creates a new ViolationArchiveJob writing archives
// under dir.
func NewViolationArchiveJob(db ArchiveDB, lock Locker, dir string, retention time.Duration, batchSize int, logger *slog.Logger) *ViolationArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViolationArchiveJob{
		db:        db,
		lock:      lock,
		dir:       dir,
		retention: retention,
		batchSize: batchSize,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (j *ViolationArchiveJob) SetNowFunc(f func() time.Time) { j.nowFunc = f }

// Run archives all violations older than the retention window, batch by
// batch. Each batch is written and fsynced to disk BEFORE its rows are
// deleted; a crash between the two leaves duplicates in the archive, never
// data loss.
//
// Returns the number of violations archived.
func (j *ViolationArchiveJob) Run(ctx context.Context) (int, error) {
	acquired, err := j.lock.TryAcquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring archive lock: %w", err)
	}
	if !acquired {
		j.logger.InfoContext(ctx, "violation archive lock held elsewhere, skipping")
		return 0, nil
	}
	defer j.lock.Release(ctx)

	cutoff := j.nowFunc().UTC().Add(-j.retention)
	total := 0

	for {
		violations, err := j.db.ListOlderThan(ctx, cutoff, j.batchSize)
		if err != nil {
			return total, fmt.Errorf("listing archivable violations: %w", err)
		}
		if len(violations) == 0 {
			break
		}

		path, err := j.writeBatch(cutoff, violations)
		if err != nil {
			return total, fmt.Errorf("writing violation archive: %w", err)
		}

		ids := make([]string, len(violations))
		for i, v := range violations {
			ids[i] = v.ID
		}
		deleted, err := j.db.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("deleting archived violations: %w", err)
		}
		total += int(deleted)

		j.logger.InfoContext(ctx, "archived violation batch",
			"count", deleted,
			"file", path,
			"total_archived", total,
		)

		if len(violations) < j.batchSize {
			break
		}
	}

	return total, nil
}

// RunPeriodic runs the archive job every interval until the context is
// cancelled.
func (j *ViolationArchiveJob) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "violation archive failed", "error", err)
			}
		}
	}
}

// writeBatch serializes one batch to gzip-compressed JSONL under
// dir/YYYY/MM/ and returns the file path. The file is synced before the
// caller deletes the source rows.
func (j *ViolationArchiveJob) writeBatch(cutoff time.Time, violations []types.Violation) (string, error) {
	dir := filepath.Join(j.dir, fmt.Sprintf("%d", cutoff.Year()), fmt.Sprintf("%02d", cutoff.Month()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("violations_%d.jsonl.gz", j.nowFunc().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for _, v := range violations {
		if err := enc.Encode(v); err != nil {
			return "", fmt.Errorf("encoding violation %s: %w", v.ID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("finalizing archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing archive: %w", err)
	}

	return path, nil
}
