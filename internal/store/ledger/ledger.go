// Package ledger implements the double-entry bookkeeping primitive every
// money-moving operation in the service funnels through: InsertTransaction.
// Grounded on the teacher's internal/ledger/ledger.go (a single function
// that writes a journal header plus its entries inside one *sql.Tx) and the
// original's app/repository/ledger.py:insert_transaction /
// get_remaining_reservation_for_job.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/cache"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/money"
)

// Store persists journals and ledger entries.
type Store struct {
	balanceCache *cache.BalanceCache
}

// New builds a ledger Store. balanceCache may be nil, in which case
// invalidation is a no-op (no cache configured).
func New(balanceCache *cache.BalanceCache) *Store { return &Store{balanceCache: balanceCache} }

// Leg is one side of a transaction: the account debited or credited and the
// signed amount applied to it. A transaction's legs must sum to zero.
type Leg struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
}

// InsertTransaction writes one Journal row and its Ledger rows, and applies
// each leg's amount to its account's balance, all inside tx. It panics if
// legs don't sum to zero: that is a programming error, never a runtime
// condition a caller should handle (spec.md §3 invariant: "ledger entries
// for a single journal_id always sum to exactly zero").
func (s *Store) InsertTransaction(
	ctx context.Context,
	tx *sql.Tx,
	applyBalance func(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, delta decimal.Decimal) error,
	txType model.TransactionType,
	jobID *uuid.UUID,
	priceID *int64,
	discountID *int64,
	properties map[string]any,
	legs ...Leg,
) (*model.Journal, error) {
	sum := decimal.Zero
	for _, l := range legs {
		sum = sum.Add(l.Amount)
	}
	if !sum.IsZero() {
		panic(fmt.Sprintf("ledger: legs for %s do not sum to zero: %s", txType, money.String(sum)))
	}

	var propsJSON []byte
	if properties != nil {
		var err error
		propsJSON, err = json.Marshal(properties)
		if err != nil {
			return nil, fmt.Errorf("ledger: marshal properties: %w", err)
		}
	}

	var journal model.Journal
	row := tx.QueryRowContext(ctx, `
		INSERT INTO journals (transaction_datetime, transaction_type, job_id, price_id, discount_id, properties, created_at)
		VALUES (now(), $1, $2, $3, $4, $5, now())
		RETURNING id, transaction_datetime, transaction_type, job_id, price_id, discount_id, properties, created_at`,
		txType, jobID, priceID, discountID, propsJSON)

	var rawProps []byte
	if err := row.Scan(&journal.ID, &journal.TransactionDatetime, &journal.TransactionType, &journal.JobID,
		&journal.PriceID, &journal.DiscountID, &rawProps, &journal.CreatedAt); err != nil {
		return nil, fmt.Errorf("ledger: insert journal: %w", err)
	}
	if len(rawProps) > 0 {
		if err := json.Unmarshal(rawProps, &journal.Properties); err != nil {
			return nil, fmt.Errorf("ledger: unmarshal properties: %w", err)
		}
	}

	for _, l := range legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (account_id, journal_id, amount, created_at)
			VALUES ($1, $2, $3, now())`, l.AccountID, journal.ID, l.Amount); err != nil {
			return nil, fmt.Errorf("ledger: insert entry: %w", err)
		}
		if err := applyBalance(ctx, tx, l.AccountID, l.Amount); err != nil {
			return nil, fmt.Errorf("ledger: apply balance: %w", err)
		}
		s.balanceCache.Invalidate(ctx, l.AccountID)
	}

	return &journal, nil
}

// GetRemainingReservationForJob returns the outstanding reservation balance
// for a job: the sum of every ledger entry on the job's RSV account that is
// tied to a journal referencing this job. A RESERVE leg is positive, CHARGE
// and RELEASE legs against the reservation account are negative; the sum is
// what's left to release or charge (spec.md §4.4-§4.6). A negative sum is
// returned as an integrity-violation error.
func (s *Store) GetRemainingReservationForJob(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, rsvAccountID uuid.UUID) (decimal.Decimal, error) {
	var sum sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(le.amount), 0)
		FROM ledger_entries le
		JOIN journals j ON j.id = le.journal_id
		WHERE j.job_id = $1 AND le.account_id = $2`, jobID, rsvAccountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: remaining reservation: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(sum.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: parse remaining reservation: %w", err)
	}
	if money.IsNegative(d) {
		return decimal.Zero, fmt.Errorf("ledger: job %s has negative remaining reservation %s: integrity violation", jobID, money.String(d))
	}
	return d, nil
}

// SumChargedForJob returns the total already charged (CHARGE_* legs posted
// against SYS, i.e. actual revenue recognized) for a job. No caller in this
// repository uses it.
func (s *Store) SumChargedForJob(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, sysAccountID uuid.UUID) (decimal.Decimal, error) {
	var sum sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(le.amount), 0)
		FROM ledger_entries le
		JOIN journals j ON j.id = le.journal_id
		WHERE j.job_id = $1 AND le.account_id = $2
		  AND j.transaction_type IN ('CHARGE_ONESHOT', 'CHARGE_LONGRUN', 'CHARGE_STORAGE')`,
		jobID, sysAccountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: sum charged: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(sum.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: parse sum charged: %w", err)
	}
	return d, nil
}

// Entry is one ledger row joined with its journal header, for the account
// activity report (SPEC_FULL.md §C).
type Entry struct {
	JournalID           int64
	TransactionDatetime time.Time
	TransactionType     model.TransactionType
	JobID               *uuid.UUID
	AccountID           uuid.UUID
	Amount              decimal.Decimal
}

// ListEntriesForAccount returns accountID's ledger activity, most recent
// first, paginated with (page, pageSize) both 1-based/positive.
func (s *Store) ListEntriesForAccount(ctx context.Context, q queryer, accountID uuid.UUID, page, pageSize int) ([]Entry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	rows, err := q.QueryContext(ctx, `
		SELECT j.id, j.transaction_datetime, j.transaction_type, j.job_id, le.account_id, le.amount
		FROM ledger_entries le
		JOIN journals j ON j.id = le.journal_id
		WHERE le.account_id = $1
		ORDER BY j.transaction_datetime DESC, j.id DESC
		LIMIT $2 OFFSET $3`, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.JournalID, &e.TransactionDatetime, &e.TransactionType, &e.JobID, &e.AccountID, &e.Amount); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// queryer is satisfied by both *sql.DB and *sql.Tx for read-only helpers.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
