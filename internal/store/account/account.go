// Package account implements the account repository: CRUD over the account
// hierarchy and the row-locking bundle fetch every reservation, release and
// charge operation needs before it can move money (spec.md §3, §4).
// Grounded on the teacher's internal/ledger/ledger.go query style (explicit
// column lists, QueryRowContext + Scan, no ORM) and the original's
// app/repository/account.py (RepositoryGroup.account.get_accounts_by_proj_id).
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
)

// Store persists accounts.
type Store struct{}

// New builds an account Store.
func New() *Store { return &Store{} }

const accountColumns = `id, type, parent_id, name, balance, enabled, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Type, &a.ParentID, &a.Name, &a.Balance, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account. Balance starts at zero; callers fund it via
// a TOP_UP/ASSIGN_BUDGET transaction, never by writing balance directly.
func (s *Store) Create(ctx context.Context, tx *sql.Tx, typ model.AccountType, parentID *uuid.UUID, name string) (*model.Account, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, type, parent_id, name, balance, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, true, now(), now())
		RETURNING `+accountColumns,
		uuid.New(), typ, parentID, name)
	a, err := scanAccount(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, apperr.New(apperr.CodeEntityAlreadyExists, fmt.Sprintf("account %q already exists", name))
		}
		return nil, fmt.Errorf("account: create: %w", err)
	}
	return a, nil
}

// Get fetches an account by id without locking.
func (s *Store) Get(ctx context.Context, q queryer, id uuid.UUID) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("account: get: %w", err)
	}
	return a, nil
}

// LockForUpdate fetches an account with FOR UPDATE, blocking concurrent
// writers until the enclosing transaction commits or rolls back.
// GetAccountSet uses it to lock a project's accounts in one fixed order
// (PROJ, then VLAB, then SYS, then RSV) to avoid deadlocks between
// concurrent reservations on different projects of the same vlab.
func (s *Store) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Account, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("account: lock: %w", err)
	}
	return a, nil
}

// GetAccountSet locks and returns the PROJ, VLAB, SYS and RSV accounts for a
// project, in that fixed order, for use by reservation/release/charge.
func (s *Store) GetAccountSet(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.AccountSet, error) {
	proj, err := s.LockForUpdate(ctx, tx, projID)
	if err != nil {
		return nil, err
	}
	if proj.Type != model.AccountPROJ {
		return nil, apperr.Newf(apperr.CodeInvalidRequest, "account %s is not a PROJ account", projID)
	}
	if proj.ParentID == nil {
		return nil, fmt.Errorf("account: proj %s has no parent vlab", projID)
	}
	vlab, err := s.LockForUpdate(ctx, tx, *proj.ParentID)
	if err != nil {
		return nil, err
	}
	sys, err := s.getSystemAccount(ctx, tx)
	if err != nil {
		return nil, err
	}
	rsv, err := s.getOrCreateReservationAccount(ctx, tx, proj.ID)
	if err != nil {
		return nil, err
	}
	return &model.AccountSet{Proj: proj, Vlab: vlab, Rsv: rsv, Sys: sys}, nil
}

func (s *Store) getSystemAccount(ctx context.Context, tx *sql.Tx) (*model.Account, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE type = 'SYS' FOR UPDATE`)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account: no SYS account provisioned")
	}
	if err != nil {
		return nil, fmt.Errorf("account: get sys: %w", err)
	}
	return a, nil
}

// getOrCreateReservationAccount returns the RSV child of projID, creating it
// on first use. Every PROJ gets exactly one RSV child (spec.md §3).
func (s *Store) getOrCreateReservationAccount(ctx context.Context, tx *sql.Tx, projID uuid.UUID) (*model.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE parent_id = $1 AND type = 'RSV' FOR UPDATE`, projID)
	a, err := scanAccount(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account: get rsv: %w", err)
	}
	row = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, type, parent_id, name, balance, enabled, created_at, updated_at)
		VALUES ($1, 'RSV', $2, 'reservation', 0, true, now(), now())
		ON CONFLICT (parent_id) WHERE type = 'RSV' DO UPDATE SET updated_at = accounts.updated_at
		RETURNING `+accountColumns,
		uuid.New(), projID)
	return scanAccount(row)
}

// SetEnabled toggles an account's enabled flag. Disabling never touches
// balance. A disabled PROJ is refused new reservations; creating child
// accounts does not check the flag (SPEC_FULL.md §C).
func (s *Store) SetEnabled(ctx context.Context, tx *sql.Tx, id uuid.UUID, enabled bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET enabled = $1, updated_at = now() WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("account: set enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

// ListChildren returns the direct children of parentID.
func (s *Store) ListChildren(ctx context.Context, q queryer, parentID uuid.UUID) ([]*model.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE parent_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("account: list children: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("account: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ApplyDelta adds delta to account id's balance. Callers must already hold a
// row lock on id within the same transaction (via LockForUpdate or
// GetAccountSet) so this never races with a concurrent reservation.
func (s *Store) ApplyDelta(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("account: apply delta: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx for read-only helpers.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
