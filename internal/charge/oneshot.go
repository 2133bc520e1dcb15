package charge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
	"github.com/shopspring/decimal"
)

// RunOneshot charges every finished-unchargeable oneshot job (spec.md
// §4.4). Each job is charged inside its own savepoint so a single bad job
// never aborts the batch; failures are logged and skipped, not returned.
// tx is the caller's transaction, held for the task registry lock's
// duration (spec.md §4.8).
func (e *Engine) RunOneshot(ctx context.Context, tx *sql.Tx, lastActiveJob *time.Time, limit int) (results []Result, newWatermark *time.Time, err error) {
	jobs, err := e.Jobs.OneshotCandidates(ctx, tx, lastActiveJob, limit)
	if err != nil {
		return nil, nil, err
	}
	for _, job := range jobs {
		res, err := e.chargeOneshotJob(ctx, tx, job)
		if err != nil {
			e.Log.Error().Err(err).Stringer("job_id", job.ID).Msg("oneshot charge failed")
			continue
		}
		results = append(results, res)
		recordChargeResult(model.ServiceOneshot, res)
		if newWatermark == nil || job.CreatedAt.After(*newWatermark) {
			w := job.CreatedAt
			newWatermark = &w
		}
	}
	return results, newWatermark, nil
}

func (e *Engine) chargeOneshotJob(ctx context.Context, tx *sql.Tx, job *model.Job) (Result, error) {
	var res Result
	err := dbx.WithSavepoint(ctx, tx, "oneshot", func(ctx context.Context, tx *sql.Tx) error {
		accts, err := e.Accounts.GetAccountSet(ctx, tx, job.ProjID)
		if err != nil {
			return err
		}

		price, discount, err := priceAndDiscount(ctx, tx, e.Pricing, job, *job.ReservedAt)
		if err != nil {
			// Resolve Price at reserved_at, falling back to started_at
			// (spec.md §4.4 step 2) if no price covered the reservation
			// instant (e.g. a price schedule published after reservation
			// but before the job actually started).
			price, discount, err = priceAndDiscount(ctx, tx, e.Pricing, job, *job.StartedAt)
			if err != nil {
				return err
			}
		}

		count, _ := job.UsageParams["count"].(float64)
		usageValue := decimal.NewFromFloat(count)
		total := price.FixedCost.Add(price.Multiplier.Mul(usageValue))
		total = applyDiscount(total, discount)
		if money.IsNegative(total) {
			return fmt.Errorf("charge: oneshot job %s computed negative total %s: integrity violation", job.ID, money.String(total))
		}

		remaining, err := e.Ledger.GetRemainingReservationForJob(ctx, tx, job.ID, accts.Rsv.ID)
		if err != nil {
			return err
		}

		if err := splitAndPost(ctx, tx, e, accts, job, total, remaining, priceIDPtr(price), discountIDPtr(discount), "finished_uncharged", true); err != nil {
			return err
		}

		if err := e.Jobs.MarkCharged(ctx, tx, job.ID, *job.FinishedAt); err != nil {
			return err
		}

		res = Result{JobID: job.ID, Case: "finished_uncharged", Total: total}
		return nil
	})
	return res, err
}
