// Package consumer implements the three queue consumers (spec.md §4.7):
// oneshot, longrun, storage. Each runs the same receive/consume/ack loop,
// factored into Base here; only the per-message _consume logic differs.
// Grounded on the original's app/task/queue_consumer/base.py
// (QueueConsumer._wrap/_run_once/run_forever) and oneshot.py.
package consumer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/metrics"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/queue"
	storeevent "github.com/gridledger/accounting/internal/store/event"
)

// Consume runs the business logic for one message body inside tx, and
// returns the job it touched, if any, for the Event row's job_id.
type Consume func(ctx context.Context, tx *sql.Tx, body []byte) (*model.Job, error)

// Base is the shared queue-consumer loop.
type Base struct {
	Name         string
	QueueName    string
	MaxMessages  int32
	InitialDelay time.Duration
	ErrorSleep   time.Duration

	Client  *queue.Client
	DB      *sql.DB
	Events  *storeevent.Store
	Consume Consume
	Log     zerolog.Logger
}

// Run resolves the queue URL once, then long-polls forever until ctx is
// cancelled (spec.md §4.7 steps 1-4).
func (b *Base) Run(ctx context.Context) error {
	log := b.Log.With().Str("consumer", b.Name).Str("queue", b.QueueName).Logger()

	queueURL, err := b.Client.QueueURL(ctx, b.QueueName)
	if err != nil {
		return err
	}

	select {
	case <-time.After(b.InitialDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := b.Client.Receive(ctx, queueURL, b.MaxMessages)
		if err != nil {
			log.Error().Err(err).Msg("receive failed")
			select {
			case <-time.After(b.ErrorSleep):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, m := range msgs {
			b.runOnce(ctx, queueURL, m, log)
		}
	}
}

// runOnce processes one message: consume inside a fresh transaction, then
// record the Event row, then delete the message on success or on a
// non-retriable failure (spec.md §4.7 step 4, §7 "Queue consumer transactions are rolled back on failure
// before the Event row is written").
func (b *Base) runOnce(ctx context.Context, queueURL string, m queue.Message, log zerolog.Logger) {
	var job *model.Job
	consumeErr := dbx.RunSerializable(ctx, b.DB, func(ctx context.Context, tx *sql.Tx) error {
		j, err := b.Consume(ctx, tx, []byte(m.Body))
		job = j
		return err
	})

	status := model.EventCompleted
	var errMsg *string
	if consumeErr != nil {
		status = model.EventFailed
		msg := consumeErr.Error()
		errMsg = &msg
		log.Error().Err(consumeErr).Str("message_id", m.MessageID).Msg("consume failed")
	}

	eventErr := dbx.RunSerializable(ctx, b.DB, func(ctx context.Context, tx *sql.Tx) error {
		body := m.Body
		ev, inserted, err := b.Events.TryInsert(ctx, tx, m.MessageID, b.QueueName, map[string]any{"group_id": m.GroupID}, &body)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if status == model.EventFailed {
			return b.Events.MarkFailed(ctx, tx, ev.ID, jobIDOf(job), *errMsg)
		}
		if job != nil {
			return b.Events.AttachJob(ctx, tx, ev.ID, job.ID)
		}
		return nil
	})
	if eventErr != nil {
		metrics.QueueMessagesTotal.WithLabelValues(b.QueueName, "event_error").Inc()
		log.Error().Err(eventErr).Str("message_id", m.MessageID).Msg("event bookkeeping failed")
		return
	}

	var qerr *apperr.QueueError
	retriable := errors.As(consumeErr, &qerr) && qerr.Retriable
	if consumeErr == nil || !retriable {
		if err := b.Client.Delete(ctx, queueURL, m.ReceiptHandle); err != nil {
			log.Error().Err(err).Str("message_id", m.MessageID).Msg("delete failed")
		}
	}

	switch {
	case consumeErr == nil:
		metrics.QueueMessagesTotal.WithLabelValues(b.QueueName, "completed").Inc()
	case retriable:
		metrics.QueueMessagesTotal.WithLabelValues(b.QueueName, "retriable_failure").Inc()
	default:
		metrics.QueueMessagesTotal.WithLabelValues(b.QueueName, "terminal_failure").Inc()
	}
	// A retriable failure leaves the message in place; it becomes visible
	// again after the visibility timeout and SQS redelivers it.
}

func jobIDOf(j *model.Job) *uuid.UUID {
	if j == nil {
		return nil
	}
	return &j.ID
}
