// Package natskv implements the cache port using NATS JetStream KV as the
// shared L2 tier, so multiple replicas serve the same cost summaries without
// re-querying the database.
package natskv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache adapts a JetStream KeyValue bucket. Entry lifetime comes from the
// bucket's TTL, so the per-call TTL is ignored here.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// encodeKey maps cache keys onto the KV key charset. Cache keys separate
// segments with ':', which JetStream forbids; '.' is its native separator
// and never appears inside the kind, tenant, account, or date segments.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

// Get retrieves a value, reporting a missing key as a plain miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value under the encoded key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, encodeKey(key), value)
	return err
}

// Delete removes a value. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
