package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-shop-api/internal/application/limit"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/pkg/clientip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RejectionRecorder counts requests turned away by one of the guards.
type RejectionRecorder interface {
	GuardRejected(guard string)
}

type nopRecorder struct{}

func (nopRecorder) GuardRejected(string) {}

func recorderOrNop(m RejectionRecorder) RejectionRecorder {
	if m == nil {
		return nopRecorder{}
	}
	return m
}

// Guard runs the brute-force guard for every request, keyed by client IP.
func Guard(g *limit.Guard, ips *clientip.Resolver, m RejectionRecorder, log *zap.Logger) func(http.Handler) http.Handler {
	m = recorderOrNop(m)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := g.Check(r.Context(), ips.FromRequest(r), r.Method)
			if err != nil {
				if domain.KindOf(err) == domain.KindRateLimit {
					m.GuardRejected("bruteforce")
				} else {
					log.Error("guard check failed", zap.Error(err))
				}
				writeRejection(w, r, domain.KindOf(err).HTTPStatus(), domain.PublicMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CookieStores builds the per-request counter store the route limiter uses.
type CookieStores interface {
	For(w http.ResponseWriter, r *http.Request) limit.Store
}

// CookieStoreFunc adapts a function to CookieStores.
type CookieStoreFunc func(w http.ResponseWriter, r *http.Request) limit.Store

func (f CookieStoreFunc) For(w http.ResponseWriter, r *http.Request) limit.Store { return f(w, r) }

// RouteLimit wraps a route in the per-(client, path) limiter. Counters are
// kept in the client's own cookies.
func RouteLimit(l *limit.Limiter, stores CookieStores, m RejectionRecorder) func(http.Handler) http.Handler {
	m = recorderOrNop(m)
	return func(next http.Handler) http.Handler {
		if !l.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := l.Do(r.Context(), stores.For(w, r), r.URL.Path, func() error {
				next.ServeHTTP(w, r)
				return nil
			})
			if err != nil {
				m.GuardRejected("route")
				writeRejection(w, r, domain.KindOf(err).HTTPStatus(), domain.PublicMessage(err))
			}
		})
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket rate limiter with stale-entry cleanup.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	burst    int
	ips      *clientip.Resolver
	now      func() time.Time
}

// NewRateLimiter creates a per-IP limiter: r requests/second, burst up to burst requests.
// Stale entries are dropped until ctx is done.
func NewRateLimiter(ctx context.Context, r rate.Limit, burst int, ips *clientip.Resolver) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		burst:    burst,
		ips:      ips,
		now:      time.Now,
	}
	go rl.cleanup(ctx, 5*time.Minute)
	return rl
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters[ip]; ok {
		v.lastSeen = rl.now()
		return v.limiter
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: l, lastSeen: rl.now()}
	return l
}

func (rl *RateLimiter) cleanup(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.prune(2 * every)
		}
	}
}

func (rl *RateLimiter) prune(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.limiters {
		if rl.now().Sub(v.lastSeen) > idle {
			delete(rl.limiters, ip)
		}
	}
}

// Limit is the middleware handler that enforces the rate limit per client IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(rl.ips.FromRequest(r)).Allow() {
			writeRejection(w, r, http.StatusTooManyRequests, domain.ErrRateLimited.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}
