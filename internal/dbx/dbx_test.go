package dbx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestLockNotAvailable(t *testing.T) {
	assert.True(t, LockNotAvailable(&pq.Error{Code: "55P03"}))
	assert.False(t, LockNotAvailable(&pq.Error{Code: "23505"}))
	assert.False(t, LockNotAvailable(errors.New("not a pq error")))
	assert.False(t, LockNotAvailable(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "55P03"}))
	assert.False(t, IsUniqueViolation(errors.New("not a pq error")))
}

func TestLockNotAvailableUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("lock row: %w", &pq.Error{Code: "55P03"})
	assert.True(t, LockNotAvailable(wrapped))
}
