package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields. The same claims are signed twice, once
// per exposure policy.
type Claims struct {
	UserID       string               `json:"user_id"`
	Username     string               `json:"username"`
	Email        string               `json:"email"`
	Entitlements []domain.Entitlement `json:"entitlements"`
	IsAdmin      bool                 `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity converts verified claims to the request identity.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		UserID:       c.UserID,
		Username:     c.Username,
		Email:        c.Email,
		Entitlements: c.Entitlements,
		IsAdmin:      c.IsAdmin,
	}
}

// Pair is one session: Script goes to the script-readable cookie, HTTP to
// the HTTP-only cookie.
type Pair struct {
	Script string
	HTTP   string
}

// Provider signs and verifies HS256 session tokens with two independent secrets.
type Provider struct {
	scriptSecret []byte
	httpSecret   []byte
	expiry       time.Duration
	now          func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.JWTScriptSecret == "" || cfg.JWTHTTPSecret == "" {
		return nil, errors.New("both JWT secrets are required")
	}
	if cfg.JWTScriptSecret == cfg.JWTHTTPSecret {
		return nil, errors.New("JWT secrets must differ")
	}
	return &Provider{
		scriptSecret: []byte(cfg.JWTScriptSecret),
		httpSecret:   []byte(cfg.JWTHTTPSecret),
		expiry:       time.Duration(cfg.JWTExpiryDays) * 24 * time.Hour,
		now:          time.Now,
	}, nil
}

// Expiry is the lifetime of both tokens, also used as the cookie max age.
func (p *Provider) Expiry() time.Duration { return p.expiry }

// Pair mints both tokens from one identity so they can never diverge.
func (p *Provider) Pair(id domain.Identity) (Pair, error) {
	now := p.now()
	claims := Claims{
		UserID:       id.UserID,
		Username:     id.Username,
		Email:        id.Email,
		Entitlements: id.Entitlements,
		IsAdmin:      id.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	script, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.scriptSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign script token: %w", err)
	}
	httpTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.httpSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign http token: %w", err)
	}
	return Pair{Script: script, HTTP: httpTok}, nil
}

func (p *Provider) VerifyScript(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, p.scriptSecret)
}

func (p *Provider) VerifyHTTP(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, p.httpSecret)
}

func (p *Provider) verify(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
