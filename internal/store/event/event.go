// Package event implements the event log queue consumers write after
// processing a message: each (message_id, queue_name) is recorded exactly
// once, with the outcome of its first processing. The log is not consulted
// before processing; protection against double application on redelivery
// comes from each consumer's own checks on the job. Grounded on the original's
// app/repository/event.py and the teacher's use of a unique index plus
// ON CONFLICT DO NOTHING to make inserts idempotent.
package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gridledger/accounting/internal/model"
)

// Store persists the event log.
type Store struct{}

// New builds an event Store.
func New() *Store { return &Store{} }

// TryInsert records a new, not-yet-processed event for (messageID,
// queueName). It returns (event, true) if this is the first time the
// message has been seen, or (existing, false) if it was already recorded
// (spec.md §7: idempotent consumption).
func (s *Store) TryInsert(ctx context.Context, tx *sql.Tx, messageID, queueName string, attributes map[string]any, body *string) (*model.Event, bool, error) {
	attrsJSON, err := json.Marshal(attributes)
	if err != nil {
		return nil, false, fmt.Errorf("event: marshal attributes: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO events (message_id, queue_name, status, attributes, body, counter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, now(), now())
		ON CONFLICT (message_id, queue_name) DO NOTHING
		RETURNING id, message_id, queue_name, status, attributes, body, error, job_id, counter, created_at, updated_at`,
		messageID, queueName, model.EventCompleted, attrsJSON, body)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := s.GetByMessageID(ctx, tx, messageID, queueName)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("event: insert: %w", err)
	}
	return e, true, nil
}

// GetByMessageID fetches an event by its natural key.
func (s *Store) GetByMessageID(ctx context.Context, tx *sql.Tx, messageID, queueName string) (*model.Event, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, message_id, queue_name, status, attributes, body, error, job_id, counter, created_at, updated_at
		FROM events WHERE message_id = $1 AND queue_name = $2`, messageID, queueName)
	return scanEvent(row)
}

// MarkFailed records that processing this event failed, retriable or not,
// and increments its counter. The consumer calls it only when the row was
// just inserted; a redelivered message leaves the existing row unchanged.
func (s *Store) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, jobID *uuid.UUID, errMsg string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE events SET status = $2, error = $3, job_id = COALESCE($4, job_id), counter = counter + 1, updated_at = now()
		WHERE id = $1`, id, model.EventFailed, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("event: mark failed: %w", err)
	}
	return nil
}

// AttachJob records which job an event ultimately resolved to, once known.
func (s *Store) AttachJob(ctx context.Context, tx *sql.Tx, id int64, jobID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE events SET job_id = $2, updated_at = now() WHERE id = $1`, id, jobID)
	if err != nil {
		return fmt.Errorf("event: attach job: %w", err)
	}
	return nil
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var e model.Event
	var rawAttrs []byte
	if err := row.Scan(&e.ID, &e.MessageID, &e.QueueName, &e.Status, &rawAttrs, &e.Body, &e.Error, &e.JobID, &e.Counter, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(rawAttrs) > 0 {
		if err := json.Unmarshal(rawAttrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("event: unmarshal attributes: %w", err)
		}
	}
	return &e, nil
}
