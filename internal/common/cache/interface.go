package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations the judge relies on.
type Cache interface {
	BasicOps
	CounterOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key. A missing key yields "" and a nil error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// TTL returns the remaining time to live of a key
	// Returns -1 if the key exists but has no expiration
	// Returns -2 if the key does not exist
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// CounterOps defines counter operations used for fixed-window admission.
type CounterOps interface {
	// IncrWithExpire increments key by one and, when the key was just created,
	// sets its expiry to ttl. Both steps happen in a single atomic server-side call.
	// It returns the new value and the remaining time to live.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
}
