// Package ttlkv abstracts an ephemeral key-value store with per-key TTL and an
// atomic check-and-set. The dedup log and the recompute in-flight flag are both
// built on it; any store with single-key atomic set-if-absent-with-expiry can
// back it.
package ttlkv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL expired
var ErrNotFound = errors.New("ttlkv: key not found")

// Store defines the TTL key-value contract
type Store interface {
	// SetIfAbsent atomically sets key to value with the given TTL and reports
	// whether the key was set. A false return means the key already existed
	// and was left untouched.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get returns the value for key, ErrNotFound when absent or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
