// Package queue defines the wire event schemas (spec.md §6) and the SQS
// client wrapper consumers and publishers share. Grounded on the
// teacher's use of aws-sdk-go-v2/service/sqs and the original's
// app/schema/event.py Pydantic models, translated to Go structs validated
// with go-playground/validator.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// LongrunStatus is the closed set of longrun event statuses.
type LongrunStatus string

const (
	LongrunStarted  LongrunStatus = "started"
	LongrunRunning  LongrunStatus = "running"
	LongrunFinished LongrunStatus = "finished"
)

// OneshotEvent is the wire body for a finished oneshot job (spec.md §6).
type OneshotEvent struct {
	Type      string    `json:"type" validate:"eq=oneshot"`
	Subtype   string    `json:"subtype" validate:"required"`
	ProjID    uuid.UUID `json:"proj_id" validate:"required"`
	JobID     uuid.UUID `json:"job_id" validate:"required"`
	Count     int64     `json:"count" validate:"gte=0"`
	Timestamp int64     `json:"timestamp" validate:"required"`
}

// LongrunEvent is the wire body for a longrun lifecycle transition.
type LongrunEvent struct {
	Type         string        `json:"type" validate:"eq=longrun"`
	Subtype      string        `json:"subtype" validate:"required"`
	ProjID       uuid.UUID     `json:"proj_id" validate:"required"`
	JobID        uuid.UUID     `json:"job_id" validate:"required"`
	Status       LongrunStatus `json:"status" validate:"required,oneof=started running finished"`
	Instances    *int64        `json:"instances,omitempty" validate:"omitempty,gte=0"`
	InstanceType *string       `json:"instance_type,omitempty"`
	Timestamp    int64         `json:"timestamp" validate:"required"`
}

// StorageEvent is the wire body for a storage size sample.
type StorageEvent struct {
	Type      string    `json:"type" validate:"eq=storage"`
	Subtype   string    `json:"subtype" validate:"eq=storage"`
	ProjID    uuid.UUID `json:"proj_id" validate:"required"`
	Size      int64     `json:"size" validate:"gte=0"`
	Timestamp int64     `json:"timestamp" validate:"required"`
}

// TimestampWindow bounds how far an event's timestamp may drift from the
// consumer's clock (spec.md §4.7): defends against stale or clock-skewed
// producers.
type TimestampWindow struct {
	Past   time.Duration
	Future time.Duration
}

// ValidateTimestamp rejects an event timestamp outside the configured
// window relative to now.
func (w TimestampWindow) ValidateTimestamp(now time.Time, eventUnixSeconds int64) error {
	t := time.Unix(eventUnixSeconds, 0).UTC()
	earliest := now.Add(-w.Past)
	latest := now.Add(w.Future)
	if t.Before(earliest) {
		return fmt.Errorf("event timestamp %s is more than %s in the past", t, w.Past)
	}
	if t.After(latest) {
		return fmt.Errorf("event timestamp %s is more than %s in the future", t, w.Future)
	}
	return nil
}

// ParseOneshot decodes and validates an OneshotEvent.
func ParseOneshot(body []byte) (*OneshotEvent, error) {
	var e OneshotEvent
	if err := decodeAndValidate(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseLongrun decodes and validates a LongrunEvent.
func ParseLongrun(body []byte) (*LongrunEvent, error) {
	var e LongrunEvent
	if err := decodeAndValidate(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseStorage decodes and validates a StorageEvent.
func ParseStorage(body []byte) (*StorageEvent, error) {
	var e StorageEvent
	if err := decodeAndValidate(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func decodeAndValidate(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("queue: decode: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("queue: validate: %w", err)
	}
	return nil
}

// EventTime converts an event's epoch-seconds timestamp to a time.Time.
func EventTime(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).UTC()
}
