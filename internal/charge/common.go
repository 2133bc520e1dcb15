// Package charge implements the three settlement algorithms (spec.md
// §4.4-§4.6): oneshot, longrun and storage. All three share the same
// debit-split and refund primitives, factored out here. Grounded on the
// original's app/service/charge_oneshot.py / charge_longrun.py /
// charge_storage.py, in particular charge_longrun.py's `_charge_generic`
// helper, generalized into a single splitAndPost function all three
// engines call.
package charge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/metrics"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storejob "github.com/gridledger/accounting/internal/store/job"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
	"github.com/gridledger/accounting/internal/store/pricing"
)

// Thresholds bounds a single charging pass for one service type (spec.md
// §4.5 "Throttling"). MinChargingAmount is parsed once at startup.
type Thresholds struct {
	MinChargingInterval time.Duration
	MinChargingAmount   decimal.Decimal
}

// Engine bundles the stores every charging algorithm needs.
type Engine struct {
	Accounts *storeaccount.Store
	Ledger   *storeledger.Store
	Jobs     *storejob.Store
	Pricing  *pricing.Store
	Clock    clock.Clock
	Log      zerolog.Logger
}

// Result summarizes the outcome of charging one job, for metrics/logging.
type Result struct {
	JobID  uuid.UUID
	Case   string
	Total  decimal.Decimal
	Skipped bool
}

// chargeTxType returns the CHARGE_* transaction type for a service type.
func chargeTxType(st model.ServiceType) model.TransactionType {
	switch st {
	case model.ServiceOneshot:
		return model.TxChargeOneshot
	case model.ServiceLongrun:
		return model.TxChargeLongrun
	case model.ServiceStorage:
		return model.TxChargeStorage
	default:
		panic("charge: unknown service type " + string(st))
	}
}

// splitAndPost implements §4.4 steps 5-8 / §4.5's split rule: a positive
// total is billed from RSV first, then PROJ; a negative total always
// refunds PROJ from SYS. leftover (when releaseLeftover is true) goes back
// RSV -> PROJ. remaining is the reservation balance before this charge;
// for storage (no reservation) callers pass remaining = zero and
// releaseLeftover = false.
func splitAndPost(
	ctx context.Context, tx *sql.Tx, e *Engine,
	accts *model.AccountSet, job *model.Job,
	total, remaining decimal.Decimal,
	priceID, discountID *int64,
	reasonPrefix string,
	releaseLeftover bool,
) error {
	if money.IsNegative(remaining) {
		return fmt.Errorf("charge: job %s has negative remaining reservation %s: integrity violation", job.ID, money.String(remaining))
	}

	applyDelta := e.Accounts.ApplyDelta
	txType := chargeTxType(job.ServiceType)

	if money.IsNegative(total) {
		refund := total.Neg()
		if money.IsPositive(refund) {
			if _, err := e.Ledger.InsertTransaction(ctx, tx, applyDelta, model.TxRefund, &job.ID, priceID, discountID,
				map[string]any{"reason": reasonPrefix + ":refund_overcharge"},
				storeledger.Leg{AccountID: accts.Sys.ID, Amount: refund.Neg()},
				storeledger.Leg{AccountID: accts.Proj.ID, Amount: refund},
			); err != nil {
				return fmt.Errorf("charge: post refund: %w", err)
			}
		}
		if releaseLeftover && money.IsPositive(remaining) {
			if err := postRelease(ctx, tx, e, accts, job, remaining, reasonPrefix); err != nil {
				return err
			}
		}
		return nil
	}

	fromRsv := money.Min(total, remaining)
	fromProj := money.MaxZero(total.Sub(fromRsv))
	leftover := remaining.Sub(fromRsv)

	if money.IsPositive(fromRsv) {
		if _, err := e.Ledger.InsertTransaction(ctx, tx, applyDelta, txType, &job.ID, priceID, discountID,
			map[string]any{"reason": reasonPrefix + ":charge_reservation"},
			storeledger.Leg{AccountID: accts.Rsv.ID, Amount: fromRsv.Neg()},
			storeledger.Leg{AccountID: accts.Sys.ID, Amount: fromRsv},
		); err != nil {
			return fmt.Errorf("charge: post charge from rsv: %w", err)
		}
	}
	if money.IsPositive(fromProj) {
		if _, err := e.Ledger.InsertTransaction(ctx, tx, applyDelta, txType, &job.ID, priceID, discountID,
			map[string]any{"reason": reasonPrefix + ":charge_project"},
			storeledger.Leg{AccountID: accts.Proj.ID, Amount: fromProj.Neg()},
			storeledger.Leg{AccountID: accts.Sys.ID, Amount: fromProj},
		); err != nil {
			return fmt.Errorf("charge: post charge from proj: %w", err)
		}
	}
	if releaseLeftover && money.IsPositive(leftover) {
		if err := postRelease(ctx, tx, e, accts, job, leftover, reasonPrefix); err != nil {
			return err
		}
	}
	return nil
}

func postRelease(ctx context.Context, tx *sql.Tx, e *Engine, accts *model.AccountSet, job *model.Job, amount decimal.Decimal, reasonPrefix string) error {
	_, err := e.Ledger.InsertTransaction(ctx, tx, e.Accounts.ApplyDelta, model.TxRelease, &job.ID, nil, nil,
		map[string]any{"reason": reasonPrefix + ":release_reservation"},
		storeledger.Leg{AccountID: accts.Rsv.ID, Amount: amount.Neg()},
		storeledger.Leg{AccountID: accts.Proj.ID, Amount: amount},
	)
	if err != nil {
		return fmt.Errorf("charge: post release: %w", err)
	}
	return nil
}

// priceAndDiscount resolves the Price and Discount in effect at `at` for
// job's (vlab, service_type, service_subtype), returning their ids for the
// journal row.
func priceAndDiscount(ctx context.Context, tx *sql.Tx, p *pricing.Store, job *model.Job, at time.Time) (*model.Price, *model.Discount, error) {
	price, err := p.ResolvePrice(ctx, tx, job.ServiceType, job.ServiceSubtype, job.VlabID, at)
	if err != nil {
		return nil, nil, err
	}
	discount, err := p.ResolveDiscount(ctx, tx, job.VlabID, at)
	if err != nil {
		return nil, nil, err
	}
	return price, discount, nil
}

// applyDiscount returns total reduced by discount's fraction off (spec.md
// §4.4 step 3: total = (fixed_cost + multiplier*usage) * (1 - discount)).
// A nil discount leaves total untouched.
func applyDiscount(total decimal.Decimal, discount *model.Discount) decimal.Decimal {
	if discount == nil {
		return total
	}
	return total.Mul(decimal.NewFromInt(1).Sub(discount.Discount))
}

func priceIDPtr(p *model.Price) *int64 {
	if p == nil {
		return nil
	}
	return &p.ID
}

func discountIDPtr(d *model.Discount) *int64 {
	if d == nil {
		return nil
	}
	return &d.ID
}

// recordChargeResult exports res to Prometheus. Skipped jobs (throttled or
// already settled this round) are not counted as charges.
func recordChargeResult(serviceType model.ServiceType, res Result) {
	if res.Skipped || res.Case == "" {
		return
	}
	metrics.ChargesTotal.WithLabelValues(string(serviceType), res.Case).Inc()
	metrics.ChargeAmount.WithLabelValues(string(serviceType)).Observe(res.Total.Abs().InexactFloat64())
}

// belowThresholds reports whether a non-terminal charge should be skipped
// this round (spec.md §4.5 "Throttling"). Terminal charges must never call
// this.
func belowThresholds(start, end time.Time, total decimal.Decimal, t Thresholds) bool {
	if end.Sub(start) < t.MinChargingInterval {
		return true
	}
	if total.Abs().Cmp(t.MinChargingAmount) < 0 {
		return true
	}
	return false
}
