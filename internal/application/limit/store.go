// Package limit holds the abuse guards shared by the HTTP layer: the per-IP
// brute-force guard and the per-path cookie rate limiter. Both run on top of
// the Store contract so the counter backend can be swapped without touching
// call sites.
package limit

import (
	"context"
	"time"
)

// Store is a key to integer counter map with per-key expiry.
// Get returns 0 for absent or expired keys. Updates are read-then-write and
// not atomic across concurrent requests; counts are best effort.
type Store interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// incr adds one to key and rewrites it with a fresh ttl.
func incr(ctx context.Context, s Store, key string, ttl time.Duration) (int, error) {
	n, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n++
	return n, s.Set(ctx, key, n, ttl)
}
