package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridledger/accounting/internal/charge"
	"github.com/gridledger/accounting/internal/model"
	storetaskregistry "github.com/gridledger/accounting/internal/store/taskregistry"
)

const candidateBatchSize = 200

// NewOneshotCharger wires the oneshot charging engine into a Periodic task
// (spec.md §4.4 + §4.8).
func NewOneshotCharger(db *sql.DB, engine *charge.Engine, registry *storetaskregistry.Store, loopSleep, errorSleep time.Duration, log zerolog.Logger) *Periodic {
	return &Periodic{
		Name:       "oneshot_charger",
		LoopSleep:  loopSleep,
		ErrorSleep: errorSleep,
		DB:         db,
		Registry:   registry,
		Log:        log,
		Body: func(ctx context.Context, tx *sql.Tx, row *model.TaskRegistryRow) (*time.Time, error) {
			_, watermark, err := engine.RunOneshot(ctx, tx, row.LastActiveJob, candidateBatchSize)
			return watermark, err
		},
	}
}

// NewLongrunCharger wires the longrun charging engine into a Periodic task
// (spec.md §4.5 + §4.8).
func NewLongrunCharger(db *sql.DB, engine *charge.Engine, registry *storetaskregistry.Store, loopSleep, errorSleep, expirationInterval time.Duration, thresholds charge.Thresholds, log zerolog.Logger) *Periodic {
	return &Periodic{
		Name:       "longrun_charger",
		LoopSleep:  loopSleep,
		ErrorSleep: errorSleep,
		DB:         db,
		Registry:   registry,
		Log:        log,
		Body: func(ctx context.Context, tx *sql.Tx, row *model.TaskRegistryRow) (*time.Time, error) {
			_, watermark, err := engine.RunLongrun(ctx, tx, row.LastActiveJob, candidateBatchSize, expirationInterval, thresholds)
			return watermark, err
		},
	}
}

// NewStorageCharger wires the storage charging engine into a Periodic task
// (spec.md §4.6 + §4.8).
func NewStorageCharger(db *sql.DB, engine *charge.Engine, registry *storetaskregistry.Store, loopSleep, errorSleep time.Duration, thresholds charge.Thresholds, log zerolog.Logger) *Periodic {
	return &Periodic{
		Name:       "storage_charger",
		LoopSleep:  loopSleep,
		ErrorSleep: errorSleep,
		DB:         db,
		Registry:   registry,
		Log:        log,
		Body: func(ctx context.Context, tx *sql.Tx, row *model.TaskRegistryRow) (*time.Time, error) {
			_, watermark, err := engine.RunStorage(ctx, tx, row.LastActiveJob, candidateBatchSize, thresholds)
			return watermark, err
		},
	}
}
