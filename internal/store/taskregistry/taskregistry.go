// Package taskregistry implements cross-process mutual exclusion for
// periodic tasks: a single row per task name, locked with
// `SELECT ... FOR UPDATE NOWAIT` so that if two processes tick at once, the
// loser skips this round instead of blocking or double-charging. Grounded
// on the original's app/repository/task_registry.py
// (populate_task/get_locked_task/update_task).
package taskregistry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
)

// ErrLocked is returned by Lock when another process already holds the row.
var ErrLocked = errors.New("taskregistry: locked by another process")

// Store persists task registry rows.
type Store struct{}

// New builds a taskregistry Store.
func New() *Store { return &Store{} }

// Populate ensures a row exists for taskName, doing nothing if it already
// does. Call once at startup for every registered periodic task.
func (s *Store) Populate(ctx context.Context, db *sql.DB, taskName string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO task_registry (task_name, last_errors)
		VALUES ($1, 0)
		ON CONFLICT (task_name) DO NOTHING`, taskName)
	if err != nil {
		return fmt.Errorf("taskregistry: populate: %w", err)
	}
	return nil
}

// Lock attempts to lock taskName's row within tx. It returns ErrLocked
// (never a raw driver error) when the row is already held, so callers can
// treat a lost race as "skip this tick" rather than a failure.
func (s *Store) Lock(ctx context.Context, tx *sql.Tx, taskName string) (*model.TaskRegistryRow, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT task_name, last_run, last_duration, last_error, last_errors, last_active_job
		FROM task_registry WHERE task_name = $1 FOR UPDATE NOWAIT`, taskName)

	var r model.TaskRegistryRow
	err := row.Scan(&r.TaskName, &r.LastRun, &r.LastDuration, &r.LastError, &r.LastErrors, &r.LastActiveJob)
	if dbx.LockNotAvailable(err) {
		return nil, ErrLocked
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("taskregistry: %q not populated", taskName)
	}
	if err != nil {
		return nil, fmt.Errorf("taskregistry: lock: %w", err)
	}
	return &r, nil
}

// RecordSuccess updates the bookkeeping fields after a successful tick,
// resetting the error streak and advancing the rolling-window watermark to
// lastActiveJob when it is non-nil and newer than the current one.
func (s *Store) RecordSuccess(ctx context.Context, tx *sql.Tx, taskName string, duration time.Duration, lastActiveJob *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_registry
		SET last_run = now(), last_duration = $2, last_error = NULL, last_errors = 0,
		    last_active_job = GREATEST(COALESCE(last_active_job, $3), COALESCE($3, last_active_job))
		WHERE task_name = $1`, taskName, duration.Seconds(), lastActiveJob)
	if err != nil {
		return fmt.Errorf("taskregistry: record success: %w", err)
	}
	return nil
}

// RecordFailure updates the bookkeeping fields after a failed tick,
// incrementing the consecutive-error streak.
func (s *Store) RecordFailure(ctx context.Context, tx *sql.Tx, taskName string, errMsg string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_registry
		SET last_run = now(), last_error = $2, last_errors = last_errors + 1
		WHERE task_name = $1`, taskName, errMsg)
	if err != nil {
		return fmt.Errorf("taskregistry: record failure: %w", err)
	}
	return nil
}
