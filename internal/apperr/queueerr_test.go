package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriableQueueError(t *testing.T) {
	err := Retriable("job %s not found", "abc")
	assert.True(t, err.Retriable)
	assert.Equal(t, "job abc not found", err.Error())
}

func TestPermanentQueueError(t *testing.T) {
	err := Permanent("unknown status %q", "BOGUS")
	assert.False(t, err.Retriable)
}

func TestQueueErrorIsDetectableWithErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("consume: %w", Retriable("transient"))
	var qerr *QueueError
	assert.True(t, errors.As(wrapped, &qerr))
	assert.True(t, qerr.Retriable)
}
