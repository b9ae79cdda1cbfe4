package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-shop-api/internal/application/verification"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/logger"
	"github.com/go-shop-api/internal/pkg/id"
	"github.com/go-shop-api/internal/pkg/validate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Code purposes keep a code issued for one flow from completing another.
const (
	PurposeSignup     = "signup"
	PurposeAdminLogin = "admin-login"
	PurposePassword   = "password"
)

var (
	ErrBadCredentials = domain.E(domain.KindValidation, "credentials are incorrect")
	ErrNoPendingEmail = domain.E(domain.KindValidation, "request a verification code first")
	ErrBlocked        = domain.E(domain.KindForbidden, "this account is blocked")
)

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	Any(ctx context.Context) (bool, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetPassword(ctx context.Context, userID, hash string) error
	TouchLogin(ctx context.Context, userID string, at time.Time) error
}

type TokenSigner interface {
	Pair(id domain.Identity) (jwtinfra.Pair, error)
}

// Session is a freshly minted token pair and the identity it encodes.
type Session struct {
	Identity domain.Identity
	Tokens   jwtinfra.Pair
}

// LoginResult carries either a session, or for admins the second-factor
// challenge that was sent instead.
type LoginResult struct {
	Session   *Session
	Challenge *verification.Issued
}

type Service interface {
	SendSignupCode(ctx context.Context, req domain.SendCodeRequest, route string) (*verification.Issued, error)
	Signup(ctx context.Context, email string, req domain.SignupRequest) (*Session, error)
	Login(ctx context.Context, req domain.LoginRequest, route string) (*LoginResult, error)
	VerifyAdmin(ctx context.Context, email string, req domain.VerifyCodeRequest) (*Session, error)
	RequestPasswordChange(ctx context.Context, req domain.SendCodeRequest, route string) (*verification.Issued, error)
	ResetPassword(ctx context.Context, email string, req domain.ResetPasswordRequest) error
}

// ServiceDeps bundles everything the auth service needs.
type ServiceDeps struct {
	Users  UserRepo
	Codes  verification.Service
	Tokens TokenSigner
	Logger *zap.Logger
	Now    func() time.Time
	Cost   int // bcrypt cost; zero means bcrypt.DefaultCost
}

type service struct {
	users  UserRepo
	codes  verification.Service
	tokens TokenSigner
	log    *zap.Logger
	now    func() time.Time
	cost   int
}

func NewService(d ServiceDeps) Service {
	s := &service{users: d.Users, codes: d.Codes, tokens: d.Tokens, log: d.Logger, now: d.Now, cost: d.Cost}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

func (s *service) SendSignupCode(ctx context.Context, req domain.SendCodeRequest, route string) (*verification.Issued, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	email := verification.Normalize(req.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.E(domain.KindConflict, "email is already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.codes.Issue(ctx, verification.IssueRequest{Recipient: email, Route: route, Purpose: PurposeSignup})
}

// Signup creates the account for the pending email. The first account ever
// created becomes the administrator.
func (s *service) Signup(ctx context.Context, email string, req domain.SignupRequest) (*Session, error) {
	if email == "" {
		return nil, ErrNoPendingEmail
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	email = verification.Normalize(email)
	if err := s.codes.CheckPurpose(ctx, PurposeSignup, email, req.Code); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	exists, err := s.users.Any(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     strings.TrimSpace(req.Username),
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      !exists,
		Entitlements: []domain.Entitlement{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	if u.IsAdmin {
		s.log.Info("first account registered as administrator", zap.String("user_id", u.UserID))
	}
	return s.session(u)
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest, route string) (*LoginResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin {
		issued, err := s.codes.Issue(ctx, verification.IssueRequest{Recipient: u.Email, Route: route, Purpose: PurposeAdminLogin})
		if err != nil {
			return nil, err
		}
		return &LoginResult{Challenge: issued}, nil
	}
	s.touch(ctx, u)
	sess, err := s.session(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: sess}, nil
}

// VerifyAdmin completes the admin second factor for the pending email.
func (s *service) VerifyAdmin(ctx context.Context, email string, req domain.VerifyCodeRequest) (*Session, error) {
	if email == "" {
		return nil, ErrNoPendingEmail
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	email = verification.Normalize(email)
	if err := s.codes.CheckPurpose(ctx, PurposeAdminLogin, email, req.Code); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		s.log.Warn("admin verification for non-admin account", logger.Email("email", email))
		return nil, domain.ErrForbidden
	}
	s.touch(ctx, u)
	return s.session(u)
}

func (s *service) RequestPasswordChange(ctx context.Context, req domain.SendCodeRequest, route string) (*verification.Issued, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	email := verification.Normalize(req.Email)
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.E(domain.KindValidation, "no account uses this email")
		}
		return nil, err
	}
	return s.codes.Issue(ctx, verification.IssueRequest{Recipient: email, Route: route, Purpose: PurposePassword})
}

func (s *service) ResetPassword(ctx context.Context, email string, req domain.ResetPasswordRequest) error {
	if email == "" {
		return ErrNoPendingEmail
	}
	if err := validate.Struct(req); err != nil {
		return err
	}
	email = verification.Normalize(email)
	if err := s.codes.CheckPurpose(ctx, PurposePassword, email, req.Code); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.SetPassword(ctx, u.UserID, string(hash))
}

// authenticate hides whether the email or the password was wrong.
func (s *service) authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, verification.Normalize(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	if u.Blocked {
		return nil, ErrBlocked
	}
	return u, nil
}

func (s *service) touch(ctx context.Context, u *domain.User) {
	if err := s.users.TouchLogin(ctx, u.UserID, s.now()); err != nil {
		s.log.Warn("failed to record last login", zap.String("user_id", u.UserID), zap.Error(err))
	}
}

func (s *service) session(u *domain.User) (*Session, error) {
	identity := u.Identity()
	pair, err := s.tokens.Pair(identity)
	if err != nil {
		return nil, err
	}
	return &Session{Identity: identity, Tokens: pair}, nil
}
