package release

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/model"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
)

type fakeAccounts struct {
	set    *model.AccountSet
	err    error
	deltas map[uuid.UUID]decimal.Decimal
}

func (f *fakeAccounts) GetAccountSet(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.AccountSet, error) {
	return f.set, f.err
}

func (f *fakeAccounts) ApplyDelta(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error {
	if f.deltas == nil {
		f.deltas = map[uuid.UUID]decimal.Decimal{}
	}
	f.deltas[id] = f.deltas[id].Add(delta)
	return nil
}

type fakeLedger struct {
	remaining decimal.Decimal
	remErr    error
	journals  []storeledger.Leg
}

func (f *fakeLedger) GetRemainingReservationForJob(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, rsvAccountID uuid.UUID) (decimal.Decimal, error) {
	return f.remaining, f.remErr
}

func (f *fakeLedger) InsertTransaction(ctx context.Context, tx *sql.Tx, applyBalance func(context.Context, *sql.Tx, uuid.UUID, decimal.Decimal) error, txType model.TransactionType, jobID *uuid.UUID, priceID *int64, discountID *int64, properties map[string]any, legs ...storeledger.Leg) (*model.Journal, error) {
	for _, l := range legs {
		if err := applyBalance(ctx, tx, l.AccountID, l.Amount); err != nil {
			return nil, err
		}
	}
	f.journals = append(f.journals, legs...)
	return &model.Journal{}, nil
}

type fakeJobs struct {
	byID         map[uuid.UUID]*model.Job
	markCancelErr error
}

func (f *fakeJobs) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Job, error) {
	j, ok := f.byID[id]
	if !ok {
		return nil, apperr.New(apperr.CodeEntityNotFound, "job not found")
	}
	return j, nil
}

func (f *fakeJobs) MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	if f.markCancelErr != nil {
		return f.markCancelErr
	}
	f.byID[id].CancelledAt = &at
	f.byID[id].FinishedAt = &at
	return nil
}

func newService(accts *fakeAccounts, ledger *fakeLedger, jobs *fakeJobs) *Service {
	return &Service{accounts: accts, ledger: ledger, jobs: jobs, clock: clock.Fixed{At: time.Unix(0, 0).UTC()}, log: zerolog.Nop()}
}

func TestReleaseMovesRemainingReservationBackToProj(t *testing.T) {
	proj := &model.Account{ID: uuid.New(), Type: model.AccountPROJ}
	rsv := &model.Account{ID: uuid.New(), Type: model.AccountRSV}
	accts := &fakeAccounts{set: &model.AccountSet{Proj: proj, Rsv: rsv}}
	ledger := &fakeLedger{remaining: decimal.NewFromInt(7)}
	jobID := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{jobID: {ID: jobID, ProjID: proj.ID, ServiceType: model.ServiceOneshot}}}
	s := newService(accts, ledger, jobs)

	err := s.Release(context.Background(), nil, jobID, model.ServiceOneshot, "finished")

	require.NoError(t, err)
	require.Len(t, ledger.journals, 2)
	assert.True(t, accts.deltas[rsv.ID].Equal(decimal.NewFromInt(-7)))
	assert.True(t, accts.deltas[proj.ID].Equal(decimal.NewFromInt(7)))
	assert.NotNil(t, jobs.byID[jobID].FinishedAt)
}

func TestReleaseWithZeroRemainingIsLedgerNoOp(t *testing.T) {
	proj := &model.Account{ID: uuid.New()}
	rsv := &model.Account{ID: uuid.New()}
	accts := &fakeAccounts{set: &model.AccountSet{Proj: proj, Rsv: rsv}}
	ledger := &fakeLedger{remaining: decimal.Zero}
	jobID := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{jobID: {ID: jobID, ServiceType: model.ServiceOneshot}}}
	s := newService(accts, ledger, jobs)

	err := s.Release(context.Background(), nil, jobID, model.ServiceOneshot, "finished")

	require.NoError(t, err)
	assert.Empty(t, ledger.journals)
	assert.NotNil(t, jobs.byID[jobID].FinishedAt, "job must still be marked finished even with nothing to release")
}

func TestReleaseRejectsAlreadyTerminalJob(t *testing.T) {
	finished := time.Now().UTC()
	jobID := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{jobID: {ID: jobID, ServiceType: model.ServiceOneshot, FinishedAt: &finished}}}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs)

	err := s.Release(context.Background(), nil, jobID, model.ServiceOneshot, "finished")

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeJobAlreadyCancelled, appErr.Code)
}

func TestReleaseRejectsServiceTypeMismatch(t *testing.T) {
	jobID := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{jobID: {ID: jobID, ServiceType: model.ServiceLongrun}}}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs)

	err := s.Release(context.Background(), nil, jobID, model.ServiceOneshot, "release_oneshot")

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeEntityNotFound, appErr.Code, "releasing a longrun job through the oneshot endpoint must look like a missing job")
}

func TestReleaseRejectsAlreadyStartedJob(t *testing.T) {
	started := time.Now().UTC()
	jobID := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{jobID: {ID: jobID, ServiceType: model.ServiceLongrun, StartedAt: &started}}}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs)

	err := s.Release(context.Background(), nil, jobID, model.ServiceLongrun, "release_longrun")

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeJobAlreadyStarted, appErr.Code)
}
