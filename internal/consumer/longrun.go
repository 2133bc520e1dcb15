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

// LongrunConsume builds the Consume function for the longrun queue
// (spec.md §4.7 "Longrun").
func LongrunConsume(jobs *storejob.Store, clk clock.Clock, window queue.TimestampWindow) Consume {
	return func(ctx context.Context, tx *sql.Tx, body []byte) (*model.Job, error) {
		ev, err := queue.ParseLongrun(body)
		if err != nil {
			return nil, apperr.Permanent("longrun event: %v", err)
		}
		if err := window.ValidateTimestamp(clk.Now(), ev.Timestamp); err != nil {
			return nil, apperr.Permanent("longrun event: %v", err)
		}

		job, err := jobs.LockForUpdate(ctx, tx, ev.JobID)
		if err != nil {
			return nil, apperr.Retriable("longrun event: job %s not found: %v", ev.JobID, err)
		}
		if job.ProjID != ev.ProjID || job.ServiceType != model.ServiceLongrun || job.ServiceSubtype != ev.Subtype {
			return job, apperr.Retriable("longrun event: job %s attributes disagree with reservation", ev.JobID)
		}

		at := queue.EventTime(ev.Timestamp)

		switch ev.Status {
		case queue.LongrunStarted:
			if job.StartedAt != nil {
				return job, apperr.Retriable("longrun event: job %s already started", ev.JobID)
			}
			if err := jobs.MarkStarted(ctx, tx, job.ID, at); err != nil {
				return job, fmt.Errorf("longrun event: mark started: %w", err)
			}
			usage := map[string]any{}
			if ev.Instances != nil {
				usage["instances"] = *ev.Instances
			}
			if ev.InstanceType != nil {
				usage["instance_type"] = *ev.InstanceType
			}
			if err := jobs.SetUsageParams(ctx, tx, job.ID, usage); err != nil {
				return job, fmt.Errorf("longrun event: set usage params: %w", err)
			}
			return job, nil

		case queue.LongrunRunning:
			if job.IsTerminal() {
				return job, apperr.Retriable("longrun event: job %s already finished", ev.JobID)
			}
			if err := jobs.MarkAlive(ctx, tx, job.ID, at); err != nil {
				return job, fmt.Errorf("longrun event: mark alive: %w", err)
			}
			return job, nil

		case queue.LongrunFinished:
			if job.IsTerminal() {
				return job, apperr.Retriable("longrun event: job %s already finished", ev.JobID)
			}
			if err := jobs.MarkAlive(ctx, tx, job.ID, at); err != nil {
				return job, fmt.Errorf("longrun event: mark alive: %w", err)
			}
			if err := jobs.MarkFinished(ctx, tx, job.ID, at); err != nil {
				return job, fmt.Errorf("longrun event: mark finished: %w", err)
			}
			return job, nil

		default:
			return job, apperr.Permanent("longrun event: unknown status %q", ev.Status)
		}
	}
}
