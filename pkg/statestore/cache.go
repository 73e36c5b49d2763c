// Package statestore provides the key/value store used to track request
// state and response records by correlation id, with multiple backend
// support. Session-affinity bindings and partition assignments are kept in
// process by pkg/partition, not here.
//
// Supported backends:
//   - Memory: in-process store for tests and single-instance development
//   - Redis: shared store for multi-instance deployments
//
// Usage:
//
//	import "github.com/openhqm/openhqm/pkg/statestore/adapters/memory"
//
//	store := memory.New()
//	defer store.Close()
//
//	err := store.Set(ctx, "key", value, time.Hour)
//	err = store.Get(ctx, "key", &result)
package statestore

import (
	"context"
	"time"
)

// Store defines the key/value interface every backend implements.
type Store interface {
	// Get retrieves a value by key and unmarshals into dest.
	// Returns errors.NotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value with a TTL.
	// A TTL of 0 means no expiration.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from the store.
	// Returns nil if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Incr increments a counter by delta and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// Close releases all resources.
	Close() error
}

// Config holds configuration for the Store. Field names mirror spec.md's
// CACHE__ environment block (TYPE, REDIS_URL, TTL_SECONDS).
type Config struct {
	// Driver specifies the store backend: "memory" or "redis".
	Driver string `env:"TYPE" env-default:"memory"`

	// RedisURL is the "host:port" address of the Redis server (Redis only).
	RedisURL string `env:"REDIS_URL" env-default:"localhost:6379"`

	// Password is the authentication password (optional, Redis only).
	Password string `env:"REDIS_PASSWORD"`

	// DB is the database number (Redis only).
	DB int `env:"REDIS_DB" env-default:"0"`

	// TTLSeconds is the default TTL applied to request/response records.
	TTLSeconds int `env:"TTL_SECONDS" env-default:"3600"`

	// Resilient configures the circuit breaker/retry wrapper cmd/* applies
	// around the constructed backend (see ResilientStore).
	Resilient ResilientConfig `env-prefix:"RESILIENT_"`
}
