// Package store provides the shared counter/cache store used by the dispatch
// core. Rate limiting and quota reporting keep all of their mutable state
// here so that multiple process replicas behave consistently.
package store

import (
	"context"
	"errors"
	"time"
)

// CounterStore is the minimal key-value surface the dispatch core requires:
// per-key integer values with expiry.
type CounterStore interface {
	// Get retrieves the value for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// Set stores the value for the given key with an expiration.
	// A zero expiration means the key does not expire.
	Set(ctx context.Context, key string, value int64, expiration time.Duration) error

	// TTL reports the remaining lifetime of the key. Keys without an
	// expiry report zero.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// AtomicIncrementer is implemented by stores that can increment a counter
// and apply an expiry in a single round trip. Admission decisions made
// against the post-increment value are race-free, unlike the read-then-write
// path a plain CounterStore forces.
type AtomicIncrementer interface {
	// IncrementWithExpiry increments the value by delta and sets the
	// expiration if the key was created by this call. Returns the
	// post-increment value.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)
}

// ErrKeyNotFound is returned when a key is not present in the store.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsKeyNotFound reports whether err indicates a missing key.
func IsKeyNotFound(err error) bool {
	var notFound *ErrKeyNotFound
	return errors.As(err, &notFound)
}
