// Package cache provides the quote cache and the short-lived locks used to
// coordinate background refreshes. Memory, Redis and a layered combination of
// both implement Service.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock reports whether the caller now holds key. The lock expires
	// after ttl even if Unlock is never called.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}
