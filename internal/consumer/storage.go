package consumer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/idgen"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/queue"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storejob "github.com/gridledger/accounting/internal/store/job"
)

// StorageConsume builds the Consume function for the storage queue
// (spec.md §4.7 "Storage"): close any open storage job for the project
// and open a fresh one at the new size.
func StorageConsume(jobs *storejob.Store, accounts *storeaccount.Store, clk clock.Clock, window queue.TimestampWindow) Consume {
	return func(ctx context.Context, tx *sql.Tx, body []byte) (*model.Job, error) {
		ev, err := queue.ParseStorage(body)
		if err != nil {
			return nil, apperr.Permanent("storage event: %v", err)
		}
		if err := window.ValidateTimestamp(clk.Now(), ev.Timestamp); err != nil {
			return nil, apperr.Permanent("storage event: %v", err)
		}

		proj, err := accounts.Get(ctx, tx, ev.ProjID)
		if err != nil {
			return nil, apperr.Retriable("storage event: project %s not found: %v", ev.ProjID, err)
		}
		if proj.ParentID == nil {
			return nil, apperr.Permanent("storage event: project %s has no vlab parent", ev.ProjID)
		}
		vlabID := *proj.ParentID

		at := queue.EventTime(ev.Timestamp)

		open, err := jobs.LatestOpenStorageJob(ctx, tx, ev.ProjID)
		if err != nil {
			return nil, fmt.Errorf("storage event: find open job: %w", err)
		}
		if open != nil {
			if err := jobs.MarkFinished(ctx, tx, open.ID, at); err != nil {
				return nil, fmt.Errorf("storage event: close open job: %w", err)
			}
		}

		job, err := jobs.CreateStorage(ctx, tx, idgen.New(), vlabID, ev.ProjID, at, ev.Size)
		if err != nil {
			return nil, fmt.Errorf("storage event: create job: %w", err)
		}
		return job, nil
	}
}
