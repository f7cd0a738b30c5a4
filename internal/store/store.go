package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the key-value contract shared by the redis backend and the
// in-process fallback. Every consumer treats an operation error as a
// cache miss; none of them propagate store failures to the caller.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX atomically creates the key only if it does not exist.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Incr atomically increments a counter, applying ttl when the
	// counter is first created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Shared reports whether operations currently reach a backend
	// visible to all service instances.
	Shared() bool
}
