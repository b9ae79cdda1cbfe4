package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-shop-api/internal/infrastructure/logger"
	"github.com/go-shop-api/internal/pkg/clientip"
	"go.uber.org/zap"
)

const (
	MaxBodyBytes          int64 = 2_000_500
	MaxPurchasesBodyBytes int64 = 5_000_000
)

// BodyLimit rejects oversized POST and PUT bodies with 413. Dashboard
// routes are not capped.
func BodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}
		capBytes := bodyCap(r.URL.Path)
		if capBytes <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > capBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, capBytes)
		next.ServeHTTP(w, r)
	})
}

func bodyCap(path string) int64 {
	switch {
	case strings.HasPrefix(path, "/v1/dashboard"):
		return 0
	case strings.HasSuffix(path, "/my-purchases"):
		return MaxPurchasesBodyBytes
	default:
		return MaxBodyBytes
	}
}

var botMarkers = []string{"bot", "crawl", "spider", "slurp", "headless", "facebookexternalhit", "python-requests", "go-http-client"}

// IsBot reports whether a User-Agent looks automated. An empty agent counts.
func IsBot(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

const botPage = `<!DOCTYPE html><html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>automated traffic</title></head>` +
	`<body style="background-color:#0a0010"><h2 style="text-align:center;color:#a22;margin-top:30px">Automated clients are not served. If you use a VPN or proxy, turn it off and try again.</h2></body></html>`

// BlockBots answers automated clients with a static notice page.
func BlockBots(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsBot(r.UserAgent()) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(botPage))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestObserver receives one sample per finished request.
type RequestObserver interface {
	ObserveRequest(method, route, status string, seconds float64)
}

// RequestLogger logs every request through zap and feeds the latency histogram.
// It must run after chi's RequestID middleware.
func RequestLogger(log *zap.Logger, obs RequestObserver, ips *clientip.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			if obs != nil {
				obs.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				logger.IP("ip", ips.FromRequest(r)),
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}
