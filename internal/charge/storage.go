package charge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
)

// RunStorage charges finished-and-unsettled storage jobs, then running
// storage jobs subject to throttling (spec.md §4.6). Storage has no
// reservation: every charge is billed PROJ -> SYS directly, so splitAndPost
// is called with remaining=0 and releaseLeftover=false. tx is the caller's
// transaction, held for the task registry lock's duration (spec.md §4.8).
func (e *Engine) RunStorage(ctx context.Context, tx *sql.Tx, lastActiveJob *time.Time, limit int, thresholds Thresholds) (results []Result, newWatermark *time.Time, err error) {
	now := e.Clock.Now()

	finished, err := e.Jobs.StorageFinishedCandidates(ctx, tx, lastActiveJob, limit)
	if err != nil {
		return nil, nil, err
	}
	for _, job := range finished {
		end := *job.FinishedAt
		start := end
		if job.LastChargedAt != nil {
			start = *job.LastChargedAt
		} else {
			start = *job.StartedAt
		}
		res, err := e.chargeStorageJob(ctx, tx, job, start, end, true, thresholds)
		if err != nil {
			e.Log.Error().Err(err).Stringer("job_id", job.ID).Msg("storage charge failed (finished)")
			continue
		}
		results = append(results, res)
		recordChargeResult(model.ServiceStorage, res)
		advanceWatermark(&newWatermark, job.CreatedAt)
	}

	running, err := e.Jobs.StorageRunningCandidates(ctx, tx, lastActiveJob, limit)
	if err != nil {
		return nil, nil, err
	}
	for _, job := range running {
		start := now
		if job.LastChargedAt != nil {
			start = *job.LastChargedAt
		} else if job.StartedAt != nil {
			start = *job.StartedAt
		}
		res, err := e.chargeStorageJob(ctx, tx, job, start, now, false, thresholds)
		if err != nil {
			e.Log.Error().Err(err).Stringer("job_id", job.ID).Msg("storage charge failed (running)")
			continue
		}
		results = append(results, res)
		recordChargeResult(model.ServiceStorage, res)
		advanceWatermark(&newWatermark, job.CreatedAt)
	}
	return results, newWatermark, nil
}

func advanceWatermark(w **time.Time, candidate time.Time) {
	if *w == nil || candidate.After(**w) {
		c := candidate
		*w = &c
	}
}

func (e *Engine) chargeStorageJob(ctx context.Context, tx *sql.Tx, job *model.Job, start, end time.Time, terminal bool, thresholds Thresholds) (Result, error) {
	var res Result
	err := dbx.WithSavepoint(ctx, tx, "storage", func(ctx context.Context, tx *sql.Tx) error {
		size, _ := job.UsageParams["size"].(float64)
		seconds := end.Sub(start).Seconds()
		usageValue := decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(seconds))

		price, discount, err := priceAndDiscount(ctx, tx, e.Pricing, job, start)
		if err != nil {
			return err
		}
		// fixed_cost is excluded for storage (spec.md §4.6).
		total := price.Multiplier.Mul(usageValue)
		total = applyDiscount(total, discount)
		if money.IsNegative(total) {
			return fmt.Errorf("charge: storage job %s computed negative total %s: integrity violation", job.ID, money.String(total))
		}

		if !terminal && belowThresholds(start, end, total, thresholds) {
			res = Result{JobID: job.ID, Skipped: true}
			return nil
		}

		accts, err := e.Accounts.GetAccountSet(ctx, tx, job.ProjID)
		if err != nil {
			return err
		}

		if err := splitAndPost(ctx, tx, e, accts, job, total, decimal.Zero, priceIDPtr(price), discountIDPtr(discount), "storage_interval", false); err != nil {
			return err
		}

		if err := e.Jobs.MarkCharged(ctx, tx, job.ID, end); err != nil {
			return err
		}

		res = Result{JobID: job.ID, Case: "storage_interval", Total: total}
		return nil
	})
	return res, err
}
