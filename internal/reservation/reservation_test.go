package reservation

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

// fakeAccounts is a minimal in-memory stand-in for storeaccount.Store,
// narrow enough to satisfy accountStore.
type fakeAccounts struct {
	set      *model.AccountSet
	err      error
	deltas   map[uuid.UUID]decimal.Decimal
	applyErr error
}

func (f *fakeAccounts) GetAccountSet(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.AccountSet, error) {
	return f.set, f.err
}

func (f *fakeAccounts) ApplyDelta(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.deltas == nil {
		f.deltas = map[uuid.UUID]decimal.Decimal{}
	}
	f.deltas[id] = f.deltas[id].Add(delta)
	return nil
}

// fakeLedger records the legs it was asked to post.
type fakeLedger struct {
	err      error
	journals []struct {
		txType model.TransactionType
		legs   []storeledger.Leg
	}
}

func (f *fakeLedger) InsertTransaction(ctx context.Context, tx *sql.Tx, applyBalance func(context.Context, *sql.Tx, uuid.UUID, decimal.Decimal) error, txType model.TransactionType, jobID *uuid.UUID, priceID *int64, discountID *int64, properties map[string]any, legs ...storeledger.Leg) (*model.Journal, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, l := range legs {
		if err := applyBalance(ctx, tx, l.AccountID, l.Amount); err != nil {
			return nil, err
		}
	}
	f.journals = append(f.journals, struct {
		txType model.TransactionType
		legs   []storeledger.Leg
	}{txType, legs})
	return &model.Journal{}, nil
}

// fakeJobs is a minimal in-memory job store.
type fakeJobs struct {
	created      *model.Job
	createErr    error
	byID         map[uuid.UUID]*model.Job
	lockErr      error
	markStartErr error
}

func (f *fakeJobs) Create(ctx context.Context, tx *sql.Tx, j *model.Job) (*model.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = j
	if f.byID == nil {
		f.byID = map[uuid.UUID]*model.Job{}
	}
	f.byID[j.ID] = j
	return j, nil
}

func (f *fakeJobs) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Job, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	j, ok := f.byID[id]
	if !ok {
		return nil, apperr.New(apperr.CodeEntityNotFound, "job not found")
	}
	return j, nil
}

func (f *fakeJobs) MarkStarted(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	if f.markStartErr != nil {
		return f.markStartErr
	}
	f.byID[id].StartedAt = &at
	return nil
}

// fakePricing is a minimal in-memory stand-in for pricing.Store.
type fakePricing struct {
	price *model.Price
	err   error
}

func (f *fakePricing) ResolvePrice(ctx context.Context, tx *sql.Tx, serviceType model.ServiceType, serviceSubtype string, vlabID uuid.UUID, at time.Time) (*model.Price, error) {
	return f.price, f.err
}

func newAccountSet() *model.AccountSet {
	proj := &model.Account{ID: uuid.New(), Type: model.AccountPROJ, Enabled: true, Balance: decimal.NewFromInt(100)}
	vlab := &model.Account{ID: uuid.New(), Type: model.AccountVLAB}
	rsv := &model.Account{ID: uuid.New(), Type: model.AccountRSV, Balance: decimal.Zero}
	return &model.AccountSet{Proj: proj, Vlab: vlab, Rsv: rsv}
}

func newService(accts *fakeAccounts, ledger *fakeLedger, jobs *fakeJobs, pr *fakePricing) *Service {
	return &Service{accounts: accts, ledger: ledger, jobs: jobs, pricing: pr, clock: clock.Fixed{At: time.Unix(0, 0).UTC()}, log: zerolog.Nop()}
}

func flatPrice(id int64, fixedCost, multiplier decimal.Decimal) *model.Price {
	return &model.Price{ID: id, FixedCost: fixedCost, Multiplier: multiplier}
}

func TestReserveMovesFundsFromProjToRsv(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	ledger := &fakeLedger{}
	jobs := &fakeJobs{}
	pr := &fakePricing{price: flatPrice(1, decimal.Zero, decimal.NewFromFloat(0.01))}
	s := newService(accts, ledger, jobs, pr)

	job, err := s.Reserve(context.Background(), nil, Request{
		ProjID:      accts.set.Proj.ID,
		ServiceType: model.ServiceOneshot,
		Count:       1000,
	})

	require.NoError(t, err)
	require.NotNil(t, job)
	assert.True(t, accts.deltas[accts.set.Proj.ID].Equal(decimal.NewFromInt(-10)))
	assert.True(t, accts.deltas[accts.set.Rsv.ID].Equal(decimal.NewFromInt(10)))
	require.Len(t, ledger.journals, 1)
	assert.Equal(t, model.TxReserve, ledger.journals[0].txType)
	assert.Equal(t, accts.set.Vlab.ID, job.VlabID, "job must record the vlab derived from the account hierarchy, not a client-supplied one")
}

func TestReserveDoesNotApplyDiscountToReservationAmount(t *testing.T) {
	// Reservation is an upper bound: spec.md §4.2 step 4 explicitly says
	// discount is not applied here, only at charging time.
	accts := &fakeAccounts{set: newAccountSet()}
	ledger := &fakeLedger{}
	jobs := &fakeJobs{}
	pr := &fakePricing{price: flatPrice(1, decimal.NewFromInt(5), decimal.Zero)}
	s := newService(accts, ledger, jobs, pr)

	_, err := s.Reserve(context.Background(), nil, Request{
		ProjID:      accts.set.Proj.ID,
		ServiceType: model.ServiceOneshot,
		Count:       0,
	})

	require.NoError(t, err)
	assert.True(t, accts.deltas[accts.set.Proj.ID].Equal(decimal.NewFromInt(-5)))
}

func TestReserveZeroCostSkipsLedgerWrite(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	ledger := &fakeLedger{}
	jobs := &fakeJobs{}
	pr := &fakePricing{price: flatPrice(1, decimal.Zero, decimal.Zero)}
	s := newService(accts, ledger, jobs, pr)

	_, err := s.Reserve(context.Background(), nil, Request{
		ProjID:      accts.set.Proj.ID,
		ServiceType: model.ServiceOneshot,
		Count:       0,
	})

	require.NoError(t, err)
	assert.Empty(t, ledger.journals)
}

func TestReserveFailsWithEntityNotFoundWhenNoPriceConfigured(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	pr := &fakePricing{err: apperr.NotFound("price")}
	s := newService(accts, &fakeLedger{}, &fakeJobs{}, pr)

	_, err := s.Reserve(context.Background(), nil, Request{ProjID: accts.set.Proj.ID, ServiceType: model.ServiceOneshot, Count: 1})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeEntityNotFound, appErr.Code)
}

func TestReserveRejectsUnsupportedServiceType(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	s := newService(accts, &fakeLedger{}, &fakeJobs{}, &fakePricing{})

	_, err := s.Reserve(context.Background(), nil, Request{ProjID: accts.set.Proj.ID, ServiceType: model.ServiceStorage})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInvalidRequest, appErr.Code)
}

func TestReserveRejectsDisabledProject(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	accts.set.Proj.Enabled = false
	s := newService(accts, &fakeLedger{}, &fakeJobs{}, &fakePricing{})

	_, err := s.Reserve(context.Background(), nil, Request{ProjID: accts.set.Proj.ID, ServiceType: model.ServiceOneshot, Count: 1})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInvalidRequest, appErr.Code)
}

func TestReserveRejectsInsufficientFunds(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	pr := &fakePricing{price: flatPrice(1, decimal.Zero, decimal.NewFromInt(1))}
	s := newService(accts, &fakeLedger{}, &fakeJobs{}, pr)

	_, err := s.Reserve(context.Background(), nil, Request{ProjID: accts.set.Proj.ID, ServiceType: model.ServiceOneshot, Count: 1000})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInsufficientFunds, appErr.Code)
}

func TestReserveLongrunUsageIsInstancesTimesDuration(t *testing.T) {
	accts := &fakeAccounts{set: newAccountSet()}
	ledger := &fakeLedger{}
	pr := &fakePricing{price: flatPrice(1, decimal.Zero, decimal.NewFromFloat(0.001))}
	s := newService(accts, ledger, &fakeJobs{}, pr)

	_, err := s.Reserve(context.Background(), nil, Request{
		ProjID:      accts.set.Proj.ID,
		ServiceType: model.ServiceLongrun,
		Instances:   2,
		Duration:    3600,
	})

	require.NoError(t, err)
	assert.True(t, accts.deltas[accts.set.Proj.ID].Equal(decimal.NewFromInt(-2*3600).Mul(decimal.NewFromFloat(0.001))))
}

func TestStartLongrunRejectsDoubleStart(t *testing.T) {
	already := time.Now().UTC()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{}}
	jobID := uuid.New()
	jobs.byID[jobID] = &model.Job{ID: jobID, StartedAt: &already}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs, &fakePricing{})

	err := s.StartLongrun(context.Background(), nil, jobID, time.Now())

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeJobAlreadyStarted, appErr.Code)
}

func TestStartLongrunRejectsFinishedJob(t *testing.T) {
	finished := time.Now().UTC()
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{}}
	jobID := uuid.New()
	jobs.byID[jobID] = &model.Job{ID: jobID, FinishedAt: &finished}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs, &fakePricing{})

	err := s.StartLongrun(context.Background(), nil, jobID, time.Now())

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeJobAlreadyCancelled, appErr.Code)
}

func TestStartLongrunSetsStartedAt(t *testing.T) {
	jobs := &fakeJobs{byID: map[uuid.UUID]*model.Job{}}
	jobID := uuid.New()
	jobs.byID[jobID] = &model.Job{ID: jobID}
	s := newService(&fakeAccounts{}, &fakeLedger{}, jobs, &fakePricing{})
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.StartLongrun(context.Background(), nil, jobID, at)

	require.NoError(t, err)
	require.NotNil(t, jobs.byID[jobID].StartedAt)
	assert.True(t, jobs.byID[jobID].StartedAt.Equal(at))
}
