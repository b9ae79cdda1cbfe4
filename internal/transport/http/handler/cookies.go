package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-shop-api/internal/application/verification"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/transport/http/middleware"
)

const (
	emailCookie    = "email"
	resendAtCookie = "resend_at"
)

var ErrResendWait = domain.E(domain.KindRateLimit, "wait for the current code to expire before requesting a new one")

// Cookies writes the session and pending-verification cookies.
type Cookies struct {
	Secure     bool
	SessionTTL time.Duration
	Now        func() time.Time
}

func (c Cookies) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetSession stores both tokens. Only the script token is readable from page scripts.
func (c Cookies) SetSession(w http.ResponseWriter, p jwtinfra.Pair) {
	c.set(w, middleware.TokenCookie, p.Script, c.SessionTTL, false)
	c.set(w, middleware.HTTPTokenCookie, p.HTTP, c.SessionTTL, true)
}

func (c Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, middleware.TokenCookie, false)
	c.clear(w, middleware.HTTPTokenCookie, true)
}

// SetPending remembers which address a code was sent to and when the next
// one may be requested.
func (c Cookies) SetPending(w http.ResponseWriter, email string, issued *verification.Issued) {
	c.set(w, emailCookie, email, verification.CodeTTL, true)
	resendAt := issued.ResendAt
	if resendAt.IsZero() {
		resendAt = c.now().Add(verification.ResendCooldown)
	}
	c.set(w, resendAtCookie, strconv.FormatInt(resendAt.UnixMilli(), 10), verification.CodeTTL, false)
}

func (c Cookies) ClearPending(w http.ResponseWriter) {
	c.clear(w, emailCookie, true)
	c.clear(w, resendAtCookie, false)
}

func pendingEmail(r *http.Request) string {
	ck, err := r.Cookie(emailCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

// resendLocked reports whether the client still holds an unexpired resend_at.
func (c Cookies) resendLocked(r *http.Request) bool {
	ck, err := r.Cookie(resendAtCookie)
	if err != nil {
		return false
	}
	ms, err := strconv.ParseInt(ck.Value, 10, 64)
	if err != nil {
		return false
	}
	return c.now().Before(time.UnixMilli(ms))
}
