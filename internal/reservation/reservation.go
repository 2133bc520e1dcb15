// Package reservation implements the pre-authorization step of the billing
// protocol: before a job starts, its expected cost is moved out of the
// project's spendable balance into its reservation account, so concurrent
// jobs on the same project can never overcommit funds (spec.md §4.3).
// Grounded on the original's app/service/job.py reservation path and the
// teacher's pattern of a single exported function wrapping one
// InsertTransaction call.
package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/idgen"
	"github.com/gridledger/accounting/internal/metrics"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
	storejob "github.com/gridledger/accounting/internal/store/job"
	"github.com/gridledger/accounting/internal/store/pricing"
)

// accountStore is the slice of the account store Reserve needs. A narrow
// interface here, rather than a concrete *storeaccount.Store, is what lets
// this package be unit tested against a fake in-memory store instead of a
// live database.
type accountStore interface {
	GetAccountSet(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.AccountSet, error)
	ApplyDelta(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error
}

// ledgerStore is the slice of the ledger store Reserve needs.
type ledgerStore interface {
	InsertTransaction(ctx context.Context, tx *sql.Tx, applyBalance func(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, delta decimal.Decimal) error, txType model.TransactionType, jobID *uuid.UUID, priceID *int64, discountID *int64, properties map[string]any, legs ...storeledger.Leg) (*model.Journal, error)
}

// jobStore is the slice of the job store Reserve and StartLongrun need.
type jobStore interface {
	Create(ctx context.Context, tx *sql.Tx, j *model.Job) (*model.Job, error)
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Job, error)
	MarkStarted(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
}

// pricingStore is the slice of the pricing store Reserve needs.
type pricingStore interface {
	ResolvePrice(ctx context.Context, tx *sql.Tx, serviceType model.ServiceType, serviceSubtype string, vlabID uuid.UUID, at time.Time) (*model.Price, error)
}

// Service reserves funds for new jobs.
type Service struct {
	accounts accountStore
	ledger   ledgerStore
	jobs     jobStore
	pricing  pricingStore
	clock    clock.Clock
	log      zerolog.Logger
}

// New builds a reservation Service.
func New(accounts *storeaccount.Store, ledger *storeledger.Store, jobs *storejob.Store, pr *pricing.Store, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{accounts: accounts, ledger: ledger, jobs: jobs, pricing: pr, clock: clk, log: log.With().Str("component", "reservation").Logger()}
}

// Request describes one reservation attempt. Count is used for ONESHOT
// reservations, Instances/Duration (seconds) for LONGRUN ones (spec.md
// §4.2 step 4); the caller never supplies the cost itself.
type Request struct {
	VlabID            uuid.UUID
	ProjID            uuid.UUID
	UserID            *uuid.UUID
	GroupID           *uuid.UUID
	ServiceType       model.ServiceType
	ServiceSubtype    string
	ReservationParams map[string]any
	Count             int64
	Instances         int64
	Duration          int64
}

// usageValue computes the quantity the price multiplier applies to: count
// for oneshot, instances * duration for longrun (spec.md §4.2 step 4;
// instance_type is informational only, per the open question in spec.md §9).
func (req Request) usageValue() (decimal.Decimal, error) {
	switch req.ServiceType {
	case model.ServiceOneshot:
		return decimal.NewFromInt(req.Count), nil
	case model.ServiceLongrun:
		return decimal.NewFromInt(req.Instances).Mul(decimal.NewFromInt(req.Duration)), nil
	default:
		return decimal.Zero, apperr.Newf(apperr.CodeInvalidRequest, "reservations are not supported for service type %s", req.ServiceType)
	}
}

// Reserve resolves the applicable Price, computes its cost server-side and
// moves that amount from PROJ to its RSV account, creating the Job row
// tracking the reservation, inside tx. It fails with ENTITY_NOT_FOUND if no
// Price covers (vlab, type, subtype, now), with INSUFFICIENT_FUNDS if the
// project's balance (after existing reservations) cannot cover the cost,
// and with INVALID_REQUEST if the project is disabled (spec.md §4.2, §7,
// SPEC_FULL.md §C "disabled accounts block new reservations").
func (s *Service) Reserve(ctx context.Context, tx *sql.Tx, req Request) (*model.Job, error) {
	now := s.clock.Now()

	accts, err := s.accounts.GetAccountSet(ctx, tx, req.ProjID)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "error").Inc()
		return nil, err
	}
	if !accts.Proj.Enabled {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "disabled").Inc()
		return nil, apperr.Newf(apperr.CodeInvalidRequest, "project %s is disabled", req.ProjID)
	}

	usageValue, err := req.usageValue()
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "invalid").Inc()
		return nil, err
	}
	if money.IsNegative(usageValue) {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "invalid").Inc()
		return nil, apperr.Newf(apperr.CodeInvalidRequest, "reservation usage must be non-negative, got %s", money.String(usageValue))
	}

	price, err := s.pricing.ResolvePrice(ctx, tx, req.ServiceType, req.ServiceSubtype, accts.Vlab.ID, now)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "error").Inc()
		return nil, err
	}
	// Discount is never applied at reservation time: the reservation is an
	// upper bound, not the eventual settled price (spec.md §4.2 step 4).
	amount := price.FixedCost.Add(price.Multiplier.Mul(usageValue))

	if accts.Proj.Balance.Cmp(amount) < 0 {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "insufficient_funds").Inc()
		return nil, apperr.New(apperr.CodeInsufficientFunds, "project balance cannot cover reservation amount").
			WithDetails(map[string]any{
				"available_balance": accts.Proj.Balance.StringFixed(5),
				"requested_amount":  amount.StringFixed(5),
			})
	}

	job := &model.Job{
		ID:                idgen.New(),
		GroupID:           req.GroupID,
		VlabID:            accts.Vlab.ID,
		ProjID:            req.ProjID,
		UserID:            req.UserID,
		ServiceType:       req.ServiceType,
		ServiceSubtype:    req.ServiceSubtype,
		ReservationParams: req.ReservationParams,
	}
	job, err = s.jobs.Create(ctx, tx, job)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "error").Inc()
		return nil, fmt.Errorf("reservation: create job: %w", err)
	}

	if money.IsPositive(amount) {
		_, err = s.ledger.InsertTransaction(ctx, tx, s.accounts.ApplyDelta, model.TxReserve, &job.ID, &price.ID, nil,
			map[string]any{"reason": "reserve:reserve_funds"},
			storeledger.Leg{AccountID: accts.Proj.ID, Amount: amount.Neg()},
			storeledger.Leg{AccountID: accts.Rsv.ID, Amount: amount},
		)
		if err != nil {
			metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "error").Inc()
			return nil, fmt.Errorf("reservation: insert transaction: %w", err)
		}
	}
	metrics.ReservationsTotal.WithLabelValues(string(req.ServiceType), "ok").Inc()

	s.log.Info().
		Stringer("job_id", job.ID).
		Stringer("proj_id", req.ProjID).
		Str("amount", money.String(amount)).
		Msg("reserved funds for job")

	return job, nil
}

// StartLongrun marks a previously reserved LONGRUN job as started, recording
// the instant its first heartbeat/start event arrived. It is an error to
// start a job twice (spec.md §7: JOB_ALREADY_STARTED).
func (s *Service) StartLongrun(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, at time.Time) error {
	j, err := s.jobs.LockForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if j.StartedAt != nil {
		return apperr.New(apperr.CodeJobAlreadyStarted, "job already started")
	}
	if j.IsTerminal() {
		return apperr.New(apperr.CodeJobAlreadyCancelled, "job already finished")
	}
	return s.jobs.MarkStarted(ctx, tx, jobID, at)
}
