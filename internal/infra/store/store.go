// Package store defines the byte-level backend contract the cache subsystem
// persists through. Backends only move opaque values; entry semantics (TTL,
// LRU, hit counts) belong to the cache layer.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Backend is a minimal keyed byte store.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. ttl is a hint for backends with native
	// expiry; zero means no backend-side expiry. Last write wins on
	// concurrent puts to the same key.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Locker is an optional advisory lock primitive for backends shared across
// processes. Callers must never hold the lock across unrelated work; it
// exists only to make a single metadata read-modify-write safe.
type Locker interface {
	// TryLock attempts to take the named lock without blocking. On success
	// it returns a release func and true. ttl bounds how long an orphaned
	// lock can linger where the backend supports it.
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}
