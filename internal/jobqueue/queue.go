// Package jobqueue implements the durable SQLite-backed job queue and
// worker loop from spec.md §4.11: submit/next/start/update_progress/
// complete/fail/cancel/stats/cleanup_old, plus the stuck-job recovery
// supplemented feature. Grounded on the teacher's
// internal/store/sqlite_bm25.go connection/WAL setup, reusing
// internal/async/status.go's progress-snapshot shape, and
// original_source/src/modules/job_manager.py + fix_stuck_jobs.py for
// the exact operation contract.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mnemo-dev/mnemo/internal/apierrors"
	"github.com/mnemo-dev/mnemo/internal/types"
)

// Queue is the durable, single-process, multi-producer/single-consumer
// job store. Multiple consumers are allowed (the atomic pending->running
// transition in Start arbitrates them) but the Worker only ever runs one.
type Queue struct {
	db *sql.DB
}

// Open opens (and initializes, if necessary) the job queue database at
// path. An empty path opens an in-memory queue for tests.
func Open(path string) (*Queue, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	q := &Queue{db: db}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority INTEGER NOT NULL DEFAULT 5,
			params TEXT,
			result TEXT,
			error TEXT,
			progress INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status_priority
			ON jobs(status, priority DESC, created_at ASC);
		CREATE INDEX IF NOT EXISTS idx_jobs_finished_at ON jobs(finished_at);
	`)
	return err
}

// Submit inserts a new job in the pending state and returns its ID.
func (q *Queue) Submit(ctx context.Context, jobType string, params map[string]any, priority int) (string, error) {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	id := uuid.NewString()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", apierrors.Wrap(apierrors.CodeInvalidInput, err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, priority, params, progress, created_at)
		VALUES (?, ?, 'pending', ?, ?, 0, ?)`,
		id, jobType, priority, string(paramsJSON), nowISO())
	if err != nil {
		return "", apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return id, nil
}

// Next returns the highest-priority, oldest-created pending job without
// mutating its state. Returns (nil, nil) when the queue is empty.
func (q *Queue) Next(ctx context.Context) (*types.Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, type, status, priority, params, result, error, progress,
		       created_at, started_at, finished_at
		FROM jobs WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC LIMIT 1`)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return job, nil
}

// Start atomically transitions id from pending to running. Returns
// false if another consumer already claimed it (or it doesn't exist).
func (q *Queue) Start(ctx context.Context, id string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = ?
		WHERE id = ? AND status = 'pending'`, nowISO(), id)
	if err != nil {
		return false, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateProgress sets the job's progress percentage and, optionally, status.
func (q *Queue) UpdateProgress(ctx context.Context, id string, pct int, status string) error {
	var err error
	if status != "" {
		_, err = q.db.ExecContext(ctx, `UPDATE jobs SET progress = ?, status = ? WHERE id = ?`, pct, status, id)
	} else {
		_, err = q.db.ExecContext(ctx, `UPDATE jobs SET progress = ? WHERE id = ?`, pct, id)
	}
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return nil
}

// Complete marks id completed with the given result, at 100% progress.
func (q *Queue) Complete(ctx context.Context, id, result string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', progress = 100, result = ?, finished_at = ?
		WHERE id = ?`, result, nowISO(), id)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return nil
}

// Fail marks id failed with the given error message.
func (q *Queue) Fail(ctx context.Context, id, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = ?, finished_at = ?
		WHERE id = ?`, errMsg, nowISO(), id)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return nil
}

// Cancel marks id cancelled, if and only if it is pending or running.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', finished_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`, nowISO(), id)
	if err != nil {
		return false, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, apierrors.New(apierrors.CodeJobNotCancellable, "job is not pending or running", nil)
	}
	return true, nil
}

// Get fetches a single job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*types.Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, type, status, priority, params, result, error, progress,
		       created_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apierrors.New(apierrors.CodeJobNotFound, "job not found", nil).WithDetail("id", id)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return job, nil
}

// Stats is the aggregate view returned by the stats() operation.
type Stats struct {
	CountsByStatus    map[string]int
	Total             int
	SuccessRate       float64
	AvgLatencySeconds float64
}

// StatsSnapshot computes the job queue's aggregate metrics.
func (q *Queue) StatsSnapshot(ctx context.Context) (Stats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	counts := map[string]int{}
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Stats{}, apierrors.Wrap(apierrors.CodeInternal, err)
		}
		counts[status] = n
		total += n
	}
	rows.Close()

	completed, failed := counts["completed"], counts["failed"]
	successRate := 0.0
	if completed+failed > 0 {
		successRate = float64(completed) / float64(completed+failed) * 100
	}

	latRows, err := q.db.QueryContext(ctx, `
		SELECT started_at, finished_at FROM jobs
		WHERE status = 'completed' AND started_at IS NOT NULL AND finished_at IS NOT NULL
		ORDER BY finished_at DESC LIMIT 100`)
	if err != nil {
		return Stats{}, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	var sum float64
	var n int
	for latRows.Next() {
		var startS, endS string
		if err := latRows.Scan(&startS, &endS); err != nil {
			continue
		}
		start, err1 := time.Parse(time.RFC3339Nano, startS)
		end, err2 := time.Parse(time.RFC3339Nano, endS)
		if err1 == nil && err2 == nil {
			sum += end.Sub(start).Seconds()
			n++
		}
	}
	latRows.Close()
	avgLatency := 0.0
	if n > 0 {
		avgLatency = sum / float64(n)
	}

	return Stats{CountsByStatus: counts, Total: total, SuccessRate: successRate, AvgLatencySeconds: avgLatency}, nil
}

// CleanupOld deletes terminal jobs whose finished_at is older than days.
func (q *Queue) CleanupOld(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecoverStuck resets jobs stuck in 'running' back to 'pending': a
// crashed worker leaves its claimed job unreachable otherwise, since
// nothing else will ever re-poll it. Only jobs whose started_at is
// older than olderThan are swept, so a legitimately in-flight job on
// another consumer is left alone; olderThan <= 0 resets every running
// job regardless of age.
func (q *Queue) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `UPDATE jobs SET status = 'pending', started_at = NULL WHERE status = 'running'`
	var args []any
	if olderThan > 0 {
		query += ` AND started_at < ?`
		args = append(args, time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano))
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodeInternal, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	var paramsJSON sql.NullString
	var result, errMsg sql.NullString
	var createdAt string
	var startedAt, finishedAt sql.NullString

	if err := row.Scan(&j.ID, &j.Type, &j.Status, &j.Priority, &paramsJSON,
		&result, &errMsg, &j.Progress, &createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	if paramsJSON.Valid && paramsJSON.String != "" {
		_ = json.Unmarshal([]byte(paramsJSON.String), &j.Params)
	}
	j.Result = result.String
	j.Error = errMsg.String
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		j.CreatedAt = t
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			j.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			j.FinishedAt = &t
		}
	}
	return &j, nil
}
