package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewWithoutAddrAlwaysMisses(t *testing.T) {
	c := New("", "", 0, zerolog.Nop())
	_, ok := c.Get(context.Background(), uuid.New())
	assert.False(t, ok)
}

func TestDisabledCacheSetAndInvalidateAreNoOps(t *testing.T) {
	c := New("", "", 0, zerolog.Nop())
	id := uuid.New()
	// Must not panic even though there is no backing Redis client.
	c.Set(context.Background(), id, decimal.NewFromInt(10))
	c.Invalidate(context.Background(), id)
	_, ok := c.Get(context.Background(), id)
	assert.False(t, ok)
}

func TestNilCacheReceiverIsSafe(t *testing.T) {
	var c *BalanceCache
	_, ok := c.Get(context.Background(), uuid.New())
	assert.False(t, ok)
	c.Set(context.Background(), uuid.New(), decimal.NewFromInt(1))
	c.Invalidate(context.Background(), uuid.New())
}
