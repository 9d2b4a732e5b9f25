// Package cache defines the byte-value cache port shared by the local,
// NATS KV, and tiered adapters.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys. SpendSight fronts
// the dashboard summary reads with it; those are requested far more often
// than the ledger changes underneath them.
type Cache interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for at most ttl. Implementations may
	// evict earlier or, as with bucket-level TTLs, ignore ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
