package apperr

import "fmt"

// QueueError marks a queue message as failed in a way consumers must
// decide whether to leave for redelivery. Mirrors the original's
// app/errors.py:EventError (spec.md §7: "EventError ... retriable via
// requeue" for transient conditions vs. a permanent mismatch that a DLQ
// policy eventually drops).
type QueueError struct {
	Message   string
	Retriable bool
}

func (e *QueueError) Error() string { return e.Message }

// Retriable builds a QueueError for a transient condition: redelivery may
// succeed once the underlying condition clears.
func Retriable(format string, args ...any) *QueueError {
	return &QueueError{Message: fmt.Sprintf(format, args...), Retriable: true}
}

// Permanent builds a QueueError for a failure that redelivery cannot fix
// (e.g. a message body that fails schema validation).
func Permanent(format string, args ...any) *QueueError {
	return &QueueError{Message: fmt.Sprintf(format, args...), Retriable: false}
}
