// Package tiered layers a process-local cache over a shared one.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spendsight/spendsight/internal/port/cache"
)

// Cache reads through a local tier into a shared tier and keeps both in
// step on writes. The local tier is expendable: its failures are logged
// and the shared tier still answers.
type Cache struct {
	local       cache.Cache
	shared      cache.Cache
	backfillTTL time.Duration
}

// New layers local over shared. backfillTTL bounds how long a value copied
// up from the shared tier may live locally.
func New(local, shared cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, backfillTTL: backfillTTL}
}

// Get answers from the local tier when possible, falling back to the
// shared tier and copying hits up for next time.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := c.local.Get(ctx, key)
	if err != nil {
		slog.Warn("local cache tier read failed", "key", key, "error", err)
	} else if ok {
		return val, true, nil
	}

	val, ok, err = c.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	if err := c.local.Set(ctx, key, val, c.backfillTTL); err != nil {
		slog.Warn("local cache tier backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

// Set writes the shared tier first so other instances observe the value
// even when the local write fails.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sharedErr := c.shared.Set(ctx, key, value, ttl)
	localErr := c.local.Set(ctx, key, value, ttl)
	return errors.Join(sharedErr, localErr)
}

// Delete invalidates both tiers unconditionally. A stale entry surviving
// in either tier would keep serving old data.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.local.Delete(ctx, key),
		c.shared.Delete(ctx, key),
	)
}
