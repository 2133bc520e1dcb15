package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewReturnsDistinctV4UUIDs(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a, b)
	assert.Equal(t, uuid.Version(4), a.Version())
	assert.Equal(t, uuid.Version(4), b.Version())
}
