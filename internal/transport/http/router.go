package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-shop-api/internal/application/auth"
	fileapp "github.com/go-shop-api/internal/application/file"
	"github.com/go-shop-api/internal/application/limit"
	"github.com/go-shop-api/internal/application/payment"
	"github.com/go-shop-api/internal/application/verification"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/infrastructure/cookie"
	s3infra "github.com/go-shop-api/internal/infrastructure/s3"
	"github.com/go-shop-api/internal/transport/http/handler"
	appmiddleware "github.com/go-shop-api/internal/transport/http/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. Background cleanup
// started here stops when ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	production := cfg.IsProduction()

	codes := verification.NewService(verification.ServiceDeps{
		Store:      deps.Counters,
		Mailer:     deps.Mailer,
		SMS:        deps.SMS,
		Production: production,
		Logger:     log.Named("verification"),
		Metrics:    deps.Metrics,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		Users:  deps.Users,
		Codes:  codes,
		Tokens: deps.Tokens,
		Logger: log.Named("auth"),
	})
	paymentSvc := payment.NewService(payment.ServiceDeps{
		Products: deps.Products,
		Payments: deps.Payments,
		Users:    deps.Users,
		Gateway:  deps.Gateway,
		Tokens:   deps.Tokens,
		Logger:   log.Named("payment"),
		Metrics:  deps.Metrics,
	})
	fileSvc := fileapp.NewService(fileapp.ServiceDeps{
		Objects: deps.Objects,
		Key:     s3infra.ProductKey,
		TTL:     cfg.PresignTTL,
		Logger:  log.Named("file"),
	})

	cookies := handler.Cookies{Secure: production, SessionTTL: deps.Tokens.Expiry()}
	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc, cookies, log)
	profileH := handler.NewProfileHandler(paymentSvc, cookies, log)
	paymentH := handler.NewPaymentHandler(paymentSvc, cookies, cfg.PublicBaseURL, log)
	fileH := handler.NewFileHandler(fileSvc, log)

	codec := cookie.NewCodec(cfg.CookieSecret, production)
	routeLimit := appmiddleware.RouteLimit(
		limit.NewLimiter(production),
		appmiddleware.CookieStoreFunc(func(w http.ResponseWriter, r *http.Request) limit.Store { return codec.For(w, r) }),
		deps.Metrics,
	)
	checkoutRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.CheckoutRPS), cfg.CheckoutBurst, deps.ClientIP)
	authenticate := appmiddleware.Authenticate(deps.Tokens)
	optionalAuth := appmiddleware.OptionalAuth(deps.Tokens)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(log.Named("http"), deps.Metrics, deps.ClientIP))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appmiddleware.Guard(limit.NewGuard(deps.Counters, log.Named("guard")), deps.ClientIP, deps.Metrics, log))
	r.Use(appmiddleware.BodyLimit)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(appmiddleware.BlockBots)

		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.Post("/signup/send-code", authH.SendSignupCode)
		r.Post("/signup/verify-code", authH.Signup)
		r.With(routeLimit).Post("/login", authH.Login)
		r.Post("/login/verify-code", authH.VerifyLogin)
		r.With(routeLimit).Post("/change-password", authH.RequestPasswordChange)
		r.Put("/change-password", authH.ResetPassword)

		// ── Browser-facing routes (session optional) ─────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.With(checkoutRL.Limit).Get("/payment/confirm/{id}", paymentH.Confirm)
			r.Get("/payment/verify", paymentH.Verify)
			r.Get("/files/product/{productId}/{chapter}/{name}", fileH.Product)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/profile/logout", profileH.Logout)
			r.Get("/profile/my-purchases", profileH.Purchases)
			r.Post("/profile/my-purchases", profileH.Purchases)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireAdmin)

				r.Get("/dashboard/users/{id}/purchases", profileH.UserPurchases)
			})
		})
	})

	return r
}
