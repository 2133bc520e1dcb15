// Package dbx provides the small transaction helpers every store package
// builds on: running a function inside a serializable transaction, and
// isolating one job's failure from the rest of a charger batch with a
// savepoint (mirrors the original's app/db/session.py try_nested()
// context manager, and the teacher's pattern of a single *sql.Tx passed
// down through internal/ledger/ledger.go's InsertTransaction).
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// TxFunc is a unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// RunSerializable opens a SERIALIZABLE transaction, runs fn, and commits on
// success or rolls back on error or panic. Every ledger-mutating operation
// uses this (spec.md §4: "each operation runs inside a single database
// transaction").
func RunSerializable(ctx context.Context, db *sql.DB, fn TxFunc) (err error) {
	return runWithOptions(ctx, db, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

// RunReadCommitted opens a READ COMMITTED transaction, for operations that
// only read (report listing, balance lookups that bypass the cache).
func RunReadCommitted(ctx context.Context, db *sql.DB, fn TxFunc) error {
	return runWithOptions(ctx, db, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, fn)
}

func runWithOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("dbx: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("dbx: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("dbx: commit: %w", err)
	}
	return nil
}

var savepointSeq int

// WithSavepoint runs fn inside a savepoint nested in tx, rolling back to the
// savepoint (not the whole transaction) on error. This is what lets a
// periodic charger keep going after one job in the batch fails to charge,
// mirroring try_nested() in the original job charger base class.
func WithSavepoint(ctx context.Context, tx *sql.Tx, name string, fn TxFunc) error {
	savepointSeq++
	sp := fmt.Sprintf("sp_%s_%d", name, savepointSeq)

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(sp)); err != nil {
		return fmt.Errorf("dbx: savepoint: %w", err)
	}

	fnErr := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("dbx: panic in savepoint %s: %v", sp, p)
			}
		}()
		return fn(ctx, tx)
	}()

	if fnErr != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(sp)); rbErr != nil {
			return fmt.Errorf("dbx: rollback to savepoint after %v: %w", fnErr, rbErr)
		}
		return fnErr
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(sp)); err != nil {
		return fmt.Errorf("dbx: release savepoint: %w", err)
	}
	return nil
}

// LockNotAvailable reports whether err is Postgres SQLSTATE 55P03 (lock_not_available),
// the signal a `SELECT ... FOR UPDATE NOWAIT` uses to say "someone else holds
// this row" (spec.md §4.8: task registry mutual exclusion).
func LockNotAvailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "55P03"
	}
	return false
}

// IsUniqueViolation reports whether err is Postgres SQLSTATE 23505, used to
// detect a concurrently-inserted row (e.g. two consumers racing on the same
// message_id) without taking an explicit lock first.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
