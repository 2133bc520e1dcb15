// Package task implements the periodic charger framework (spec.md §4.8):
// named singleton tasks that tick on a loop, taking the task_registry lock
// before doing any charging work so two process instances never charge the
// same batch twice. Grounded on the original's app/task/job_charger/base.py
// (BaseTask/RegisteredTask).
package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/metrics"
	"github.com/gridledger/accounting/internal/model"
	storetaskregistry "github.com/gridledger/accounting/internal/store/taskregistry"
)

// Body is one tick's worth of work, run inside the transaction that holds
// the task registry lock, given the just-locked registry row. It returns
// the new rolling-window watermark (the most recent created_at among jobs
// it touched), or nil if it touched nothing.
type Body func(ctx context.Context, tx *sql.Tx, row *model.TaskRegistryRow) (newWatermark *time.Time, err error)

// Periodic runs Body on a loop, serialized across processes via the task
// registry row lock.
type Periodic struct {
	Name       string
	LoopSleep  time.Duration
	ErrorSleep time.Duration

	DB       *sql.DB
	Registry *storetaskregistry.Store
	Body     Body
	Log      zerolog.Logger
}

// Run populates the registry row if absent, then ticks until ctx is
// cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	log := p.Log.With().Str("task", p.Name).Logger()

	if err := p.Registry.Populate(ctx, p.DB, p.Name); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sleep, err := p.tick(ctx, log)
		if err != nil {
			log.Error().Err(err).Msg("tick failed")
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tick takes the registry lock and holds it for one transaction spanning
// the lock itself, Body's full execution, and recording the outcome, so two
// process instances can never run the same charger body concurrently
// (spec.md §4.8 step 1). It skips the round entirely if another process
// holds the lock.
func (p *Periodic) tick(ctx context.Context, log zerolog.Logger) (sleep time.Duration, err error) {
	var watermark *time.Time
	var bodyErr error
	var duration time.Duration

	lockErr := dbx.RunSerializable(ctx, p.DB, func(ctx context.Context, tx *sql.Tx) error {
		row, err := p.Registry.Lock(ctx, tx, p.Name)
		if err != nil {
			return err
		}

		start := time.Now()
		watermark, bodyErr = p.Body(ctx, tx, row)
		duration = time.Since(start)
		metrics.TaskTickDuration.WithLabelValues(p.Name).Observe(duration.Seconds())

		if bodyErr != nil {
			return p.Registry.RecordFailure(ctx, tx, p.Name, bodyErr.Error())
		}
		return p.Registry.RecordSuccess(ctx, tx, p.Name, duration, watermark)
	})

	if lockErr == storetaskregistry.ErrLocked {
		log.Debug().Msg("task registry locked by another process, skipping tick")
		return p.LoopSleep, nil
	}
	if lockErr != nil {
		log.Error().Err(lockErr).Msg("tick transaction failed")
		return p.ErrorSleep, lockErr
	}

	if bodyErr != nil {
		metrics.TaskTicksTotal.WithLabelValues(p.Name, "error").Inc()
		return p.ErrorSleep, bodyErr
	}
	metrics.TaskTicksTotal.WithLabelValues(p.Name, "ok").Inc()
	return p.LoopSleep, nil
}
