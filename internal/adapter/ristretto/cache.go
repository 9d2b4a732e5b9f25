// Package ristretto implements the cache port using dgraph-io/ristretto as
// the in-process L1 tier. Dashboard summaries and provider catalog responses
// are the main occupants.
package ristretto

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache adapts a ristretto cache, costed by value size in bytes.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New builds a cache bounded at maxCostBytes of stored values. Counter
// space is sized for roughly kilobyte JSON entries.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / 1024 * 10
	if counters < 1024 {
		counters = 1024
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value costed at its byte length. ristretto applies writes
// asynchronously, so Set waits for the buffer to drain; without that a
// read immediately after a write could miss. The admission policy may
// still reject the entry, which is a cache miss later, not an error.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		slog.Debug("l1 cache rejected entry", "key", key, "bytes", len(value))
		return nil
	}
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
