package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value cache used to dampen repeated reads: the monthly
// usage figure, the due-route batch and per-route price history all sit
// behind one. Implementations must treat a missing key as a miss, not an
// error.
type Store interface {
	// Get returns the cached value and whether the key was present and fresh
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value with the given TTL
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
