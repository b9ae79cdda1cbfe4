package limit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-shop-api/internal/domain"
)

const (
	LimiterMaxAttempts = 5
	LimiterWindow      = 5 * time.Minute
	LimiterRetryLimit  = 3
	LimiterCooldown    = time.Hour
)

var ErrRouteLimited = domain.E(domain.KindRateLimit, "too many attempts, please wait 1 hour")

// Limiter gates an operation per (client, path). The counters live in a
// client-scoped Store, normally the signed-cookie backend.
type Limiter struct {
	enabled bool
}

// NewLimiter returns a limiter; a disabled limiter runs every operation directly.
func NewLimiter(enabled bool) *Limiter { return &Limiter{enabled: enabled} }

func (l *Limiter) Enabled() bool { return l.enabled }

// Do runs op unless the client exceeded the path budget. op's error is returned unchanged.
//
// Once attempts reach LimiterMaxAttempts the retry counter is armed at 1. Every
// admitted request while it is armed bumps it, and at LimiterRetryLimit the path
// stays closed until the retry counter expires.
func (l *Limiter) Do(ctx context.Context, store Store, path string, op func() error) error {
	if !l.enabled {
		return op()
	}
	attemptsKey, retryKey := "attempts:"+path, "retry:"+path

	attempts, err := store.Get(ctx, attemptsKey)
	if err != nil {
		return fmt.Errorf("read attempts: %w", err)
	}
	retry, err := store.Get(ctx, retryKey)
	if err != nil {
		return fmt.Errorf("read retry: %w", err)
	}

	if attempts >= LimiterMaxAttempts {
		if err := store.Set(ctx, retryKey, 1, LimiterCooldown); err != nil {
			return fmt.Errorf("arm retry: %w", err)
		}
		return ErrRouteLimited
	}
	if retry >= LimiterRetryLimit {
		return ErrRouteLimited
	}

	if retry > 0 {
		if err := store.Set(ctx, retryKey, retry+1, LimiterCooldown); err != nil {
			return fmt.Errorf("bump retry: %w", err)
		}
	}
	if _, err := incr(ctx, store, attemptsKey, LimiterWindow); err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	return op()
}
