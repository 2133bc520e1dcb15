// Package job implements the job repository: lifecycle CRUD plus the
// candidate queries the periodic chargers use to find jobs due for a
// charging pass. Grounded on the original's app/repository/job.py and the
// teacher's query style in internal/ledger/ledger.go.
package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/model"
)

// Store persists jobs.
type Store struct{}

// New builds a job Store.
func New() *Store { return &Store{} }

const jobColumns = `id, group_id, vlab_id, proj_id, user_id, service_type, service_subtype,
	reserved_at, started_at, last_alive_at, last_charged_at, finished_at, cancelled_at,
	reservation_params, usage_params, created_at, updated_at`

type rowScanner interface{ Scan(...any) error }

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var resParams, usageParams []byte
	if err := row.Scan(&j.ID, &j.GroupID, &j.VlabID, &j.ProjID, &j.UserID, &j.ServiceType, &j.ServiceSubtype,
		&j.ReservedAt, &j.StartedAt, &j.LastAliveAt, &j.LastChargedAt, &j.FinishedAt, &j.CancelledAt,
		&resParams, &usageParams, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(resParams) > 0 {
		if err := json.Unmarshal(resParams, &j.ReservationParams); err != nil {
			return nil, fmt.Errorf("job: unmarshal reservation_params: %w", err)
		}
	}
	if len(usageParams) > 0 {
		if err := json.Unmarshal(usageParams, &j.UsageParams); err != nil {
			return nil, fmt.Errorf("job: unmarshal usage_params: %w", err)
		}
	}
	return &j, nil
}

// Create inserts a new job row at reservation time.
func (s *Store) Create(ctx context.Context, tx *sql.Tx, j *model.Job) (*model.Job, error) {
	resParams, err := json.Marshal(j.ReservationParams)
	if err != nil {
		return nil, fmt.Errorf("job: marshal reservation_params: %w", err)
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO jobs (id, group_id, vlab_id, proj_id, user_id, service_type, service_subtype,
			reserved_at, reservation_params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8, now(), now())
		RETURNING `+jobColumns,
		j.ID, j.GroupID, j.VlabID, j.ProjID, j.UserID, j.ServiceType, j.ServiceSubtype, resParams)
	return scanJob(row)
}

// Get fetches a job by id without locking.
func (s *Store) Get(ctx context.Context, q queryer, id uuid.UUID) (*model.Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job")
	}
	if err != nil {
		return nil, fmt.Errorf("job: get: %w", err)
	}
	return j, nil
}

// LockForUpdate fetches and row-locks a job, for charge/release operations
// that must serialize against concurrent events for the same job.
func (s *Store) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job")
	}
	if err != nil {
		return nil, fmt.Errorf("job: lock: %w", err)
	}
	return j, nil
}

// MarkStarted sets started_at and last_alive_at (longrun "started" event).
func (s *Store) MarkStarted(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, tx, id, `SET started_at = $2, last_alive_at = $2, updated_at = now() WHERE id = $1`, at)
}

// MarkAlive updates last_alive_at (longrun heartbeat event).
func (s *Store) MarkAlive(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, tx, id, `SET last_alive_at = $2, updated_at = now() WHERE id = $1`, at)
}

// MarkCharged updates last_charged_at after a successful charging pass.
func (s *Store) MarkCharged(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, tx, id, `SET last_charged_at = $2, updated_at = now() WHERE id = $1`, at)
}

// MarkFinished sets finished_at, terminating the job.
func (s *Store) MarkFinished(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, tx, id, `SET finished_at = $2, updated_at = now() WHERE id = $1`, at)
}

// MarkCancelled sets cancelled_at and finished_at together, matching the
// original's treatment of cancellation as a terminal state reached without
// a usage report.
func (s *Store) MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return s.touch(ctx, tx, id, `SET cancelled_at = $2, finished_at = $2, updated_at = now() WHERE id = $1`, at)
}

// SetUsageParams overwrites the job's recorded usage parameters, as reported
// by a oneshot usage event or a longrun started event.
func (s *Store) SetUsageParams(ctx context.Context, tx *sql.Tx, id uuid.UUID, usage map[string]any) error {
	b, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("job: marshal usage_params: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE jobs SET usage_params = $2, updated_at = now() WHERE id = $1`, id, b)
	if err != nil {
		return fmt.Errorf("job: set usage params: %w", err)
	}
	return nil
}

func (s *Store) touch(ctx context.Context, tx *sql.Tx, id uuid.UUID, setClause string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE jobs `+setClause, id, at)
	if err != nil {
		return fmt.Errorf("job: update: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("job")
	}
	return nil
}

func watermarkOrEpoch(lastActiveJob *time.Time) time.Time {
	if lastActiveJob != nil {
		return *lastActiveJob
	}
	return time.Unix(0, 0).UTC()
}

func queryJobs(ctx context.Context, q queryer, query string, args ...any) ([]*model.Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job: candidates: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// OneshotCandidates returns finished-unchargeable oneshot jobs (spec.md
// §4.4): started, finished, never charged, optionally bounded below by the
// rolling-window watermark.
func (s *Store) OneshotCandidates(ctx context.Context, q queryer, lastActiveJob *time.Time, limit int) ([]*model.Job, error) {
	return queryJobs(ctx, q, `
		SELECT `+jobColumns+` FROM jobs
		WHERE service_type = 'ONESHOT'
		  AND started_at IS NOT NULL
		  AND finished_at IS NOT NULL
		  AND last_charged_at IS NULL
		  AND created_at >= $1
		ORDER BY finished_at ASC
		LIMIT $2`, watermarkOrEpoch(lastActiveJob), limit)
}

// LongrunCandidates returns longrun jobs not yet settled (spec.md §4.5):
// started, and either never charged, still running, or charged at a point
// that doesn't match finished_at yet.
func (s *Store) LongrunCandidates(ctx context.Context, q queryer, lastActiveJob *time.Time, limit int) ([]*model.Job, error) {
	return queryJobs(ctx, q, `
		SELECT `+jobColumns+` FROM jobs
		WHERE service_type = 'LONGRUN'
		  AND started_at IS NOT NULL
		  AND (last_charged_at IS NULL OR finished_at IS NULL OR last_charged_at <> finished_at)
		  AND created_at >= $1
		ORDER BY COALESCE(last_charged_at, started_at) ASC
		LIMIT $2`, watermarkOrEpoch(lastActiveJob), limit)
}

// StorageFinishedCandidates returns finished-and-unsettled storage jobs
// (spec.md §4.6 step 1).
func (s *Store) StorageFinishedCandidates(ctx context.Context, q queryer, lastActiveJob *time.Time, limit int) ([]*model.Job, error) {
	return queryJobs(ctx, q, `
		SELECT `+jobColumns+` FROM jobs
		WHERE service_type = 'STORAGE'
		  AND finished_at IS NOT NULL
		  AND (last_charged_at IS NULL OR last_charged_at <> finished_at)
		  AND created_at >= $1
		ORDER BY finished_at ASC
		LIMIT $2`, watermarkOrEpoch(lastActiveJob), limit)
}

// StorageRunningCandidates returns still-open storage jobs (spec.md §4.6
// step 2), subject to throttling by the caller.
func (s *Store) StorageRunningCandidates(ctx context.Context, q queryer, lastActiveJob *time.Time, limit int) ([]*model.Job, error) {
	return queryJobs(ctx, q, `
		SELECT `+jobColumns+` FROM jobs
		WHERE service_type = 'STORAGE'
		  AND finished_at IS NULL
		  AND created_at >= $1
		ORDER BY COALESCE(last_charged_at, started_at) ASC
		LIMIT $2`, watermarkOrEpoch(lastActiveJob), limit)
}

// LatestOpenStorageJob returns the currently-open storage job for a
// project, if any (spec.md §4.7: the storage consumer closes this job
// before opening a new one).
func (s *Store) LatestOpenStorageJob(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.Job, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE proj_id = $1 AND service_type = 'STORAGE' AND finished_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1 FOR UPDATE`, projID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job: latest open storage job: %w", err)
	}
	return j, nil
}

// CreateStorage inserts a new open storage job, system-generated (spec.md
// §4.7: storage jobs have no reservation, no caller-supplied id).
func (s *Store) CreateStorage(ctx context.Context, tx *sql.Tx, id, vlabID, projID uuid.UUID, at time.Time, size int64) (*model.Job, error) {
	usage, err := json.Marshal(map[string]any{"size": size})
	if err != nil {
		return nil, fmt.Errorf("job: marshal usage_params: %w", err)
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO jobs (id, vlab_id, proj_id, service_type, service_subtype,
			reserved_at, started_at, last_alive_at, usage_params, created_at, updated_at)
		VALUES ($1, $2, $3, 'STORAGE', 'storage', $4, $4, $4, $5, now(), now())
		RETURNING `+jobColumns,
		id, vlabID, projID, at, usage)
	return scanJob(row)
}

// queryer is satisfied by both *sql.DB and *sql.Tx for read-only helpers.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
