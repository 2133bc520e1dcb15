package charge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
)

// longrunCase names one row of the pattern-match table in spec.md §4.5.
type longrunCase string

const (
	caseUnfinishedUncharged longrunCase = "unfinished_uncharged"
	caseExpiredUncharged    longrunCase = "expired_uncharged"
	caseUnfinishedCharged   longrunCase = "unfinished_charged"
	caseExpiredCharged      longrunCase = "expired_charged"
	caseFinishedUncharged   longrunCase = "finished_uncharged"
	caseFinishedCharged     longrunCase = "finished_charged"
	caseFinishedOvercharged longrunCase = "finished_overcharged"
)

// classifyLongrun selects the pattern-match row for job at instant now,
// given the configured expiration_interval. Returns ("", false) for a job
// that somehow reached RunLongrun without started_at set; that should
// never happen given the candidate query and is treated as a caller bug.
func classifyLongrun(job *model.Job, now time.Time, expirationInterval time.Duration) (longrunCase, bool) {
	if job.StartedAt == nil {
		return "", false
	}
	if job.FinishedAt == nil {
		aliveAt := job.LastAliveAt
		if aliveAt == nil {
			aliveAt = job.StartedAt
		}
		stale := now.Sub(*aliveAt) > expirationInterval
		switch {
		case job.LastChargedAt == nil && !stale:
			return caseUnfinishedUncharged, true
		case job.LastChargedAt == nil && stale:
			return caseExpiredUncharged, true
		case job.LastChargedAt != nil && !stale:
			return caseUnfinishedCharged, true
		default:
			return caseExpiredCharged, true
		}
	}
	switch {
	case job.LastChargedAt == nil:
		return caseFinishedUncharged, true
	case job.LastChargedAt.Before(*job.FinishedAt):
		return caseFinishedCharged, true
	case job.LastChargedAt.After(*job.FinishedAt):
		return caseFinishedOvercharged, true
	default:
		// last_charged_at == finished_at: already settled, nothing to do.
		return "", false
	}
}

// RunLongrun charges every due longrun job (spec.md §4.5). expirationInterval
// is the grace period past the last heartbeat before a running job is
// force-cancelled. thresholds gate non-terminal charges only. tx is the
// caller's transaction, held for the task registry lock's duration
// (spec.md §4.8).
func (e *Engine) RunLongrun(ctx context.Context, tx *sql.Tx, lastActiveJob *time.Time, limit int, expirationInterval time.Duration, thresholds Thresholds) (results []Result, newWatermark *time.Time, err error) {
	jobs, err := e.Jobs.LongrunCandidates(ctx, tx, lastActiveJob, limit)
	if err != nil {
		return nil, nil, err
	}
	now := e.Clock.Now()
	for _, job := range jobs {
		res, err := e.chargeLongrunJob(ctx, tx, job, now, expirationInterval, thresholds)
		if err != nil {
			e.Log.Error().Err(err).Stringer("job_id", job.ID).Msg("longrun charge failed")
			continue
		}
		results = append(results, res)
		recordChargeResult(model.ServiceLongrun, res)
		if newWatermark == nil || job.CreatedAt.After(*newWatermark) {
			w := job.CreatedAt
			newWatermark = &w
		}
	}
	return results, newWatermark, nil
}

func (e *Engine) chargeLongrunJob(ctx context.Context, tx *sql.Tx, job *model.Job, now time.Time, expirationInterval time.Duration, thresholds Thresholds) (Result, error) {
	var res Result
	err := dbx.WithSavepoint(ctx, tx, "longrun", func(ctx context.Context, tx *sql.Tx) error {
		kase, ok := classifyLongrun(job, now, expirationInterval)
		if !ok {
			res = Result{JobID: job.ID, Skipped: true}
			return nil
		}

		terminal := kase == caseExpiredUncharged || kase == caseExpiredCharged ||
			kase == caseFinishedUncharged || kase == caseFinishedCharged || kase == caseFinishedOvercharged

		var start, end time.Time
		includeFixedCost := false
		releaseLeftover := false
		var settleAt time.Time
		var expire bool

		switch kase {
		case caseUnfinishedUncharged:
			start, end = *job.StartedAt, now
			includeFixedCost = true
			settleAt = now
		case caseExpiredUncharged:
			start, end = *job.StartedAt, now
			includeFixedCost = true
			releaseLeftover = true
			expire = true
			settleAt = now
		case caseUnfinishedCharged:
			start, end = *job.LastChargedAt, now
			settleAt = now
		case caseExpiredCharged:
			start, end = *job.LastChargedAt, now
			releaseLeftover = true
			expire = true
			settleAt = now
		case caseFinishedUncharged:
			start, end = *job.StartedAt, *job.FinishedAt
			includeFixedCost = true
			releaseLeftover = true
			settleAt = *job.FinishedAt
		case caseFinishedCharged:
			start, end = *job.LastChargedAt, *job.FinishedAt
			releaseLeftover = true
			settleAt = *job.FinishedAt
		case caseFinishedOvercharged:
			start, end = *job.FinishedAt, *job.LastChargedAt
			releaseLeftover = true
			settleAt = *job.FinishedAt
		}

		accts, err := e.Accounts.GetAccountSet(ctx, tx, job.ProjID)
		if err != nil {
			return err
		}
		price, discount, err := priceAndDiscount(ctx, tx, e.Pricing, job, start)
		if err != nil {
			return err
		}

		instances, _ := job.UsageParams["instances"].(float64)
		seconds := end.Sub(start).Seconds()
		usageValue := decimal.NewFromFloat(instances).Mul(decimal.NewFromFloat(seconds))

		total := price.Multiplier.Mul(usageValue)
		if includeFixedCost {
			total = total.Add(price.FixedCost)
		}
		total = applyDiscount(total, discount)
		if kase == caseFinishedOvercharged {
			// The table defines this case's amount as the overcharge
			// itself, computed over (finished_at, last_charged_at]; negate
			// so splitAndPost takes the refund branch.
			total = total.Neg()
		}

		if !terminal && belowThresholds(start, end, total, thresholds) {
			res = Result{JobID: job.ID, Case: string(kase), Skipped: true}
			return nil
		}

		remaining, err := e.Ledger.GetRemainingReservationForJob(ctx, tx, job.ID, accts.Rsv.ID)
		if err != nil {
			return err
		}

		if err := splitAndPost(ctx, tx, e, accts, job, total, remaining, priceIDPtr(price), discountIDPtr(discount), string(kase), releaseLeftover); err != nil {
			return err
		}

		if err := e.Jobs.MarkCharged(ctx, tx, job.ID, settleAt); err != nil {
			return err
		}
		if expire {
			if err := e.Jobs.MarkCancelled(ctx, tx, job.ID, settleAt); err != nil {
				return err
			}
		}

		res = Result{JobID: job.ID, Case: string(kase), Total: total}
		return nil
	})
	return res, err
}
