package http

import (
	"context"

	"github.com/go-shop-api/internal/application/auth"
	fileapp "github.com/go-shop-api/internal/application/file"
	"github.com/go-shop-api/internal/application/limit"
	"github.com/go-shop-api/internal/application/payment"
	"github.com/go-shop-api/internal/application/verification"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/metrics"
	"github.com/go-shop-api/internal/pkg/clientip"
	"go.uber.org/zap"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	auth.UserRepo
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// ProductRepository is the minimal interface the router requires from a product store.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
}

// PaymentRepository is the minimal interface the router requires from a payment store.
type PaymentRepository interface {
	payment.PaymentRepo
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Users    UserRepository
	Products ProductRepository
	Payments PaymentRepository
	// Counters backs the brute-force guard and verification codes.
	Counters limit.Store
	Objects  fileapp.ObjectStore
	Mailer   verification.Mailer
	SMS      verification.SMSSender
	Gateway  payment.Gateway
	Tokens   *jwtinfra.Provider
	Metrics  *metrics.Metrics
	// ClientIP decides which forwarding headers to believe. Nil means the
	// service is reached directly and only RemoteAddr counts.
	ClientIP *clientip.Resolver
	Logger   *zap.Logger
}
