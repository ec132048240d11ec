package stripesync

import (
	"context"
	"time"
)

// Store defines the interface for durable key-value persistence.
// Values are JSON-serializable; keys are scoped per engine instance by the
// backend (e.g. via a key prefix). The engine uses it for the pagination
// cursor, seen-markers and resolved customer records.
type Store interface {
	// Get retrieves the value stored under key and unmarshals it into out.
	// Returns false when the key does not exist (not an error).
	Get(ctx context.Context, key string, out interface{}) (bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value interface{}) error
}

// Cache defines the interface for a secondary TTL-oriented store, distinct
// from the durable Store. The engine uses it for throttling (alert quiet
// windows) and the customer-sweep high-water mark. A zero ttl means no
// expiration.
type Cache interface {
	// Get retrieves the cached value for key.
	// Returns false when the key does not exist or has expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
