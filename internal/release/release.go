// Package release implements returning an unused reservation to its
// project: RSV -> PROJ for whatever remains after the job's last charge.
// Grounded on the original's app/service/job.py release path.
package release

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
	"github.com/gridledger/accounting/internal/metrics"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storejob "github.com/gridledger/accounting/internal/store/job"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
)

// accountStore is the slice of the account store Release needs.
type accountStore interface {
	GetAccountSet(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.AccountSet, error)
	ApplyDelta(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error
}

// ledgerStore is the slice of the ledger store Release needs.
type ledgerStore interface {
	GetRemainingReservationForJob(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, rsvAccountID uuid.UUID) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, tx *sql.Tx, applyBalance func(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, delta decimal.Decimal) error, txType model.TransactionType, jobID *uuid.UUID, priceID *int64, discountID *int64, properties map[string]any, legs ...storeledger.Leg) (*model.Journal, error)
}

// jobStore is the slice of the job store Release needs.
type jobStore interface {
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Job, error)
	MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
}

// Service releases unused reservations.
type Service struct {
	accounts accountStore
	ledger   ledgerStore
	jobs     jobStore
	clock    clock.Clock
	log      zerolog.Logger
}

// New builds a release Service.
func New(accounts *storeaccount.Store, ledger *storeledger.Store, jobs *storejob.Store, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{accounts: accounts, ledger: ledger, jobs: jobs, clock: clk, log: log.With().Str("component", "release").Logger()}
}

// Release cancels an unstarted reservation, returning the job's full
// remaining reservation to its project and marking the job finished. It
// fails with ENTITY_NOT_FOUND if the job's service_type doesn't match the
// endpoint it was called through, JOB_ALREADY_STARTED if the job has
// already started (release only cancels reservations that never began
// running), and JOB_ALREADY_CANCELLED if it is already terminal (spec.md
// §4.3 step 2), so a second call for the same job fails with
// JOB_ALREADY_CANCELLED. A job whose remaining reservation is zero is still
// marked cancelled, but no zero-amount journal is written.
func (s *Service) Release(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, serviceType model.ServiceType, reason string) error {
	j, err := s.jobs.LockForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if j.ServiceType != serviceType {
		metrics.ReleasesTotal.WithLabelValues("not_found").Inc()
		return apperr.NotFound("job")
	}
	if j.StartedAt != nil {
		metrics.ReleasesTotal.WithLabelValues("already_started").Inc()
		return apperr.New(apperr.CodeJobAlreadyStarted, "job already started, cannot release")
	}
	if j.IsTerminal() {
		metrics.ReleasesTotal.WithLabelValues("already_cancelled").Inc()
		return apperr.New(apperr.CodeJobAlreadyCancelled, "job already finished")
	}

	accts, err := s.accounts.GetAccountSet(ctx, tx, j.ProjID)
	if err != nil {
		metrics.ReleasesTotal.WithLabelValues("error").Inc()
		return err
	}

	remaining, err := s.ledger.GetRemainingReservationForJob(ctx, tx, jobID, accts.Rsv.ID)
	if err != nil {
		metrics.ReleasesTotal.WithLabelValues("error").Inc()
		return err
	}

	if money.IsPositive(remaining) {
		_, err = s.ledger.InsertTransaction(ctx, tx, s.accounts.ApplyDelta, model.TxRelease, &jobID, nil, nil,
			map[string]any{"reason": reason + ":release_reservation"},
			storeledger.Leg{AccountID: accts.Rsv.ID, Amount: remaining.Neg()},
			storeledger.Leg{AccountID: accts.Proj.ID, Amount: remaining},
		)
		if err != nil {
			metrics.ReleasesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("release: insert transaction: %w", err)
		}
	}

	if err := s.jobs.MarkCancelled(ctx, tx, jobID, s.clock.Now()); err != nil {
		metrics.ReleasesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ReleasesTotal.WithLabelValues("ok").Inc()

	s.log.Info().
		Stringer("job_id", jobID).
		Str("released_amount", money.String(remaining)).
		Str("reason", reason).
		Msg("released reservation")

	return nil
}
