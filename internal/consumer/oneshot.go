package consumer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/queue"
	storejob "github.com/gridledger/accounting/internal/store/job"
)

// OneshotConsume builds the Consume function for the oneshot queue
// (spec.md §4.7 "Oneshot").
func OneshotConsume(jobs *storejob.Store, clk clock.Clock, window queue.TimestampWindow) Consume {
	return func(ctx context.Context, tx *sql.Tx, body []byte) (*model.Job, error) {
		ev, err := queue.ParseOneshot(body)
		if err != nil {
			return nil, apperr.Permanent("oneshot event: %v", err)
		}
		if err := window.ValidateTimestamp(clk.Now(), ev.Timestamp); err != nil {
			return nil, apperr.Permanent("oneshot event: %v", err)
		}

		job, err := jobs.LockForUpdate(ctx, tx, ev.JobID)
		if err != nil {
			return nil, apperr.Retriable("oneshot event: job %s not found: %v", ev.JobID, err)
		}
		if job.IsTerminal() {
			return job, apperr.Retriable("oneshot event: job %s already finished", ev.JobID)
		}
		if job.ProjID != ev.ProjID || job.ServiceType != model.ServiceOneshot || job.ServiceSubtype != ev.Subtype {
			return job, apperr.Retriable("oneshot event: job %s attributes disagree with reservation", ev.JobID)
		}

		at := queue.EventTime(ev.Timestamp)
		if err := jobs.MarkStarted(ctx, tx, job.ID, at); err != nil {
			return job, fmt.Errorf("oneshot event: mark started: %w", err)
		}
		if err := jobs.MarkFinished(ctx, tx, job.ID, at); err != nil {
			return job, fmt.Errorf("oneshot event: mark finished: %w", err)
		}
		if err := jobs.SetUsageParams(ctx, tx, job.ID, map[string]any{"count": ev.Count}); err != nil {
			return job, fmt.Errorf("oneshot event: set usage params: %w", err)
		}
		return job, nil
	}
}
