// Package cache implements the read-only balance cache described in
// SPEC_FULL.md §B.1: a short-TTL, invalidate-on-write layer in front of
// GET /balance/* only. It never sits on the write path, and every lookup
// falls through to Postgres if Redis is unavailable or unconfigured.
// Grounded on the teacher's use of go-redis/redis/v8, generalized from an
// authoritative hot-path store into a best-effort side cache.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceCache caches account balances for a short TTL. Both a nil
// *BalanceCache and one built by New with no Redis address are safe to
// call: every method degenerates to a cache miss.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New builds a BalanceCache. If addr is empty, the returned cache always
// misses, and the caller should read straight from the store.
func New(addr, password string, ttl time.Duration, log zerolog.Logger) *BalanceCache {
	if addr == "" {
		return &BalanceCache{log: log.With().Str("component", "balance_cache").Logger()}
	}
	return &BalanceCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl: ttl,
		log: log.With().Str("component", "balance_cache").Logger(),
	}
}

func key(accountID uuid.UUID) string { return "balance:" + accountID.String() }

// Get returns the cached balance for accountID, or (zero, false) on a miss
// (including when the cache is disabled or Redis errors).
func (c *BalanceCache) Get(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool) {
	if c == nil || c.rdb == nil {
		return decimal.Zero, false
	}
	val, err := c.rdb.Get(ctx, key(accountID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Stringer("account_id", accountID).Msg("balance cache get failed")
		}
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		c.log.Warn().Err(err).Msg("balance cache value unparseable")
		return decimal.Zero, false
	}
	return d, true
}

// Set caches balance for accountID with the configured TTL. Errors are
// logged and swallowed: a cache write failure must never fail the request.
func (c *BalanceCache) Set(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key(accountID), balance.String(), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Stringer("account_id", accountID).Msg("balance cache set failed")
	}
}

// Invalidate drops the cached balance for accountID. Called after every
// InsertTransaction leg so a stale value never outlives a real write by
// more than the network round trip to Redis.
func (c *BalanceCache) Invalidate(ctx context.Context, accountID uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(accountID)).Err(); err != nil {
		c.log.Warn().Err(err).Stringer("account_id", accountID).Msg("balance cache invalidate failed")
	}
}
