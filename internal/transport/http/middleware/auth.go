package middleware

import (
	"context"
	"net/http"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
)

// Session cookie names. TokenCookie is readable by page scripts, HTTPTokenCookie is HTTP-only.
const (
	TokenCookie     = "token"
	HTTPTokenCookie = "httpToken"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier checks both halves of a session.
type TokenVerifier interface {
	VerifyScript(token string) (*jwtinfra.Claims, error)
	VerifyHTTP(token string) (*jwtinfra.Claims, error)
}

type authFailure int

const (
	authMissing authFailure = iota + 1
	authMismatch
)

// resolve returns the identity carried by the session cookies. Both tokens
// must verify and agree on who the caller is and whether they are an admin.
func resolve(v TokenVerifier, r *http.Request) (domain.Identity, authFailure) {
	script, err1 := r.Cookie(TokenCookie)
	httpOnly, err2 := r.Cookie(HTTPTokenCookie)
	if err1 != nil || err2 != nil || script.Value == "" || httpOnly.Value == "" {
		return domain.Identity{}, authMissing
	}
	sc, err := v.VerifyScript(script.Value)
	if err != nil {
		return domain.Identity{}, authMismatch
	}
	hc, err := v.VerifyHTTP(httpOnly.Value)
	if err != nil {
		return domain.Identity{}, authMismatch
	}
	if sc.UserID == "" || sc.UserID != hc.UserID || sc.IsAdmin != hc.IsAdmin {
		return domain.Identity{}, authMismatch
	}
	return hc.Identity(), 0
}

// Authenticate rejects requests without a consistent session: 401 when a
// cookie is missing, 403 when the tokens fail verification or disagree.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, fail := resolve(v, r)
			switch fail {
			case authMissing:
				writeJSONError(w, http.StatusUnauthorized, "please log in to your account")
				return
			case authMismatch:
				writeJSONError(w, http.StatusForbidden, "your session is not valid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when the session is valid and
// otherwise lets the request through anonymously.
func OptionalAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, fail := resolve(v, r); fail == 0 {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !id.IsAdmin {
			writeJSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the caller identity from the request context.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}
