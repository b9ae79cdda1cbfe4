// Package payment runs the two-phase checkout handshake with the payment
// gateway and grants the purchased entitlement on a verified callback.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/zarinpal"
	"github.com/go-shop-api/internal/pkg/id"
	"go.uber.org/zap"
)

// StatusOK is the callback outcome flag the gateway sends for a completed payment.
const StatusOK = "OK"

const settleAttempts = 3

var (
	ErrNotCompleted = domain.E(domain.KindValidation, "payment was not completed")
	ErrUnknown      = domain.E(domain.KindNotFound, "payment was not completed")
	ErrOwned        = domain.E(domain.KindConflict, "you have already purchased this product")
	ErrGatewayDown  = domain.E(domain.KindGateway, "could not reach the payment gateway, please try again")
)

type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeAmbiguous Outcome = "ambiguous" // callback said OK, gateway did not confirm
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected" // gateway confirmed, callback flag was not OK
)

type ProductRepo interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
}

type PaymentRepo interface {
	Put(ctx context.Context, p *domain.Payment) error
	// Get must be a strongly consistent read.
	Get(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetByAuthority(ctx context.Context, authority string) (*domain.Payment, error)
	ListSuccessfulByUser(ctx context.Context, userID string) ([]domain.Payment, error)
	Settle(ctx context.Context, s domain.Settlement) error
}

type UserRepo interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type Gateway interface {
	Request(ctx context.Context, amount int64, callbackURL, description string) (*zarinpal.Session, error)
	Verify(ctx context.Context, amount int64, authority string) (*zarinpal.Verification, error)
}

type TokenSigner interface {
	Pair(id domain.Identity) (jwtinfra.Pair, error)
}

type Recorder interface {
	PaymentOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) PaymentOutcome(string) {}

// VerifyResult is what the callback page is rendered from. Identity and
// Tokens are set only for OutcomeSettled, and on a replay only when the
// caller is the payment's owner.
type VerifyResult struct {
	Outcome  Outcome
	Payment  *domain.Payment
	Identity domain.Identity
	Tokens   jwtinfra.Pair
	Replayed bool // the authority had already been settled
}

type Service interface {
	Initiate(ctx context.Context, caller domain.Identity, productID, callbackURL string) (string, error)
	Verify(ctx context.Context, caller domain.Identity, authority, status string) (*VerifyResult, error)
	Purchases(ctx context.Context, userID string) ([]domain.Payment, error)
}

// ServiceDeps bundles everything the payment service needs.
type ServiceDeps struct {
	Products ProductRepo
	Payments PaymentRepo
	Users    UserRepo
	Gateway  Gateway
	Tokens   TokenSigner
	Logger   *zap.Logger
	Metrics  Recorder
	Now      func() time.Time
}

type service struct {
	products ProductRepo
	payments PaymentRepo
	users    UserRepo
	gateway  Gateway
	tokens   TokenSigner
	log      *zap.Logger
	metrics  Recorder
	now      func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{
		products: d.Products,
		payments: d.Payments,
		users:    d.Users,
		gateway:  d.Gateway,
		tokens:   d.Tokens,
		log:      d.Logger,
		metrics:  d.Metrics,
		now:      d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Initiate opens a gateway session for productID and records the pending
// payment. It returns the gateway URL the browser must be sent to.
func (s *service) Initiate(ctx context.Context, caller domain.Identity, productID, callbackURL string) (string, error) {
	if caller.UserID == "" {
		return "", domain.ErrUnauthorized
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Wrap(domain.KindNotFound, "product not found", err)
		}
		return "", err
	}
	// ownership is checked against the stored record, not the token claims
	user, err := s.users.Get(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Wrap(domain.KindAuth, "unauthorized", err)
		}
		return "", err
	}
	if user.Owns(product.ProductID) {
		return "", ErrOwned
	}

	amount := product.Amount()
	session, err := s.gateway.Request(ctx, amount, callbackURL, product.Title)
	if err != nil {
		s.log.Error("payment request failed", zap.String("product_id", productID), zap.Error(err))
		return "", domain.Wrap(domain.KindGateway, ErrGatewayDown.Message, err)
	}
	if session.Status != zarinpal.CodeOK {
		s.log.Warn("payment request refused", zap.String("product_id", productID), zap.Int("status", session.Status))
		return "", ErrGatewayDown
	}

	now := s.now().UTC()
	p := &domain.Payment{
		PaymentID: id.New(),
		UserID:    user.UserID,
		ProductID: product.ProductID,
		Amount:    amount,
		Title:     product.Title,
		Version:   product.Version,
		Authority: session.Authority,
		Success:   false,
		Status:    domain.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Put(ctx, p); err != nil {
		return "", fmt.Errorf("store pending payment: %w", err)
	}
	s.log.Info("payment initiated",
		zap.String("payment_id", p.PaymentID), zap.String("user_id", p.UserID),
		zap.String("product_id", p.ProductID), zap.Int64("amount", amount))
	return session.URL, nil
}

// Verify handles the gateway callback. Lookup failures come back as errors;
// every gateway verdict comes back as a result. caller is the session on the
// callback request, if any; the authority alone never yields a session for an
// already settled payment.
func (s *service) Verify(ctx context.Context, caller domain.Identity, authority, status string) (*VerifyResult, error) {
	if authority == "" {
		return nil, ErrNotCompleted
	}
	p, err := s.lookup(ctx, authority)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnknown
		}
		return nil, err
	}
	user, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnknown
		}
		return nil, err
	}
	if p.Success {
		return s.replay(p, user, caller)
	}

	verdict := 0
	v, err := s.gateway.Verify(ctx, p.Amount, authority)
	if err != nil {
		s.log.Error("payment verification failed", zap.String("payment_id", p.PaymentID), zap.Error(err))
	} else {
		verdict = v.Status
	}

	switch {
	case verdict != zarinpal.CodeOK && status == StatusOK:
		return s.result(OutcomeAmbiguous, p), nil
	case verdict != zarinpal.CodeOK:
		return s.result(OutcomeFailed, p), nil
	case status != StatusOK:
		return s.result(OutcomeRejected, p), nil
	}
	return s.settle(ctx, caller, p, user, v.RefID)
}

func (s *service) settle(ctx context.Context, caller domain.Identity, p *domain.Payment, user *domain.User, refID string) (*VerifyResult, error) {
	for attempt := 1; ; attempt++ {
		ents := domain.AppendEntitlement(user.Entitlements, p.Entitlement())
		err := s.payments.Settle(ctx, domain.Settlement{
			PaymentID:     p.PaymentID,
			RefID:         refID,
			UserID:        user.UserID,
			Entitlements:  ents,
			UserUpdatedAt: user.UpdatedAt,
		})
		switch {
		case err == nil:
			p.Success = true
			p.RefID = &refID
			p.Status = domain.PaymentDelivered
			user.Entitlements = ents
			s.log.Info("payment settled", zap.String("payment_id", p.PaymentID), zap.String("ref_id", refID))
			res, err := s.withSession(OutcomeSettled, p, user)
			if err == nil {
				s.metrics.PaymentOutcome(string(OutcomeSettled))
			}
			return res, err
		case errors.Is(err, domain.ErrAlreadySettled):
			// a concurrent callback won; render what it stored
			return s.reload(ctx, p, caller)
		case errors.Is(err, domain.ErrStaleWrite) && attempt < settleAttempts:
			if user, err = s.users.Get(ctx, user.UserID); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("settle payment %s: %w", p.PaymentID, err)
		}
	}
}

// lookup finds the payment through the authority index, then re-reads it by
// id so the Success flag is not stale.
func (s *service) lookup(ctx context.Context, authority string) (*domain.Payment, error) {
	indexed, err := s.payments.GetByAuthority(ctx, authority)
	if err != nil {
		return nil, err
	}
	return s.payments.Get(ctx, indexed.PaymentID)
}

func (s *service) reload(ctx context.Context, p *domain.Payment, caller domain.Identity) (*VerifyResult, error) {
	fresh, err := s.payments.Get(ctx, p.PaymentID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, fresh.UserID)
	if err != nil {
		return nil, err
	}
	return s.replay(fresh, user, caller)
}

// replay answers a callback for an already settled payment without touching
// the gateway or storage. Tokens are minted only for the owner's own session.
func (s *service) replay(p *domain.Payment, user *domain.User, caller domain.Identity) (*VerifyResult, error) {
	owner := caller.UserID != "" && caller.UserID == p.UserID
	s.log.Info("payment callback replayed", zap.String("payment_id", p.PaymentID), zap.Bool("owner", owner))
	s.metrics.PaymentOutcome("replayed")
	if !owner {
		return &VerifyResult{Outcome: OutcomeSettled, Payment: p, Replayed: true}, nil
	}
	res, err := s.withSession(OutcomeSettled, p, user)
	if err != nil {
		return nil, err
	}
	res.Replayed = true
	return res, nil
}

func (s *service) withSession(o Outcome, p *domain.Payment, user *domain.User) (*VerifyResult, error) {
	identity := user.Identity()
	pair, err := s.tokens.Pair(identity)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Outcome: o, Payment: p, Identity: identity, Tokens: pair}, nil
}

func (s *service) result(o Outcome, p *domain.Payment) *VerifyResult {
	s.log.Warn("payment not settled", zap.String("payment_id", p.PaymentID), zap.String("outcome", string(o)))
	s.metrics.PaymentOutcome(string(o))
	return &VerifyResult{Outcome: o, Payment: p}
}

func (s *service) Purchases(ctx context.Context, userID string) ([]domain.Payment, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	list, err := s.payments.ListSuccessfulByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Payment{}
	}
	return list, nil
}
