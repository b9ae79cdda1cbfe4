package limit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-shop-api/internal/domain"
	"go.uber.org/zap"
)

const (
	GuardMaxAttempts = 10
	GuardWindow      = 10 * time.Second
	GuardCooldown    = time.Hour
)

// ErrCooldown is returned while a client is locked out.
var ErrCooldown = domain.E(domain.KindRateLimit, "too many attempts, please wait 1 hour")

// Guard counts state-changing requests per client IP and locks the client out
// for GuardCooldown once GuardMaxAttempts land inside one GuardWindow burst.
type Guard struct {
	store  Store
	logger *zap.Logger
}

func NewGuard(store Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, logger: logger}
}

// Check admits or rejects one request. Non-write methods are never counted
// but an active cooldown still rejects them.
func (g *Guard) Check(ctx context.Context, ip, method string) error {
	attemptsKey, retryKey := ip+":attempts", ip+":retry"

	attempts, err := g.store.Get(ctx, attemptsKey)
	if err != nil {
		return fmt.Errorf("read attempts: %w", err)
	}
	retry, err := g.store.Get(ctx, retryKey)
	if err != nil {
		return fmt.Errorf("read cooldown: %w", err)
	}

	if attempts >= GuardMaxAttempts {
		if retry == 0 {
			if err := g.store.Set(ctx, retryKey, 1, GuardCooldown); err != nil {
				return fmt.Errorf("set cooldown: %w", err)
			}
			g.logger.Warn("client locked out", zap.String("ip", ip), zap.Int("attempts", attempts))
		}
		return ErrCooldown
	}
	if retry >= 1 {
		return ErrCooldown
	}

	if method == http.MethodPost || method == http.MethodPut {
		if _, err := incr(ctx, g.store, attemptsKey, GuardWindow); err != nil {
			return fmt.Errorf("count attempt: %w", err)
		}
	}
	return nil
}
