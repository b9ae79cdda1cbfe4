package handler

import (
	"net/http"

	"github.com/go-shop-api/internal/application/auth"
	"github.com/go-shop-api/internal/application/verification"
	"github.com/go-shop-api/internal/domain"
	"go.uber.org/zap"
)

// AuthHandler serves sign-up, login and password change. Codes travel by
// email; the pending address is kept in an HTTP-only cookie between steps.
type AuthHandler struct {
	svc     auth.Service
	cookies Cookies
	log     *zap.Logger
}

func NewAuthHandler(svc auth.Service, cookies Cookies, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies, log: log}
}

func (h *AuthHandler) SendSignupCode(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	issued, err := h.svc.SendSignupCode(r.Context(), req, r.URL.Path)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	h.cookies.SetPending(w, verification.Normalize(req.Email), issued)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: issued.Message})
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	sess, err := h.svc.Signup(r.Context(), pendingEmail(r), req)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	h.cookies.SetSession(w, sess.Tokens)
	h.cookies.ClearPending(w)
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "your account was created"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req, r.URL.Path)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	if res.Challenge != nil {
		h.cookies.SetPending(w, verification.Normalize(req.Email), res.Challenge)
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: res.Challenge.Message})
		return
	}
	h.cookies.SetSession(w, res.Session.Tokens)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "you are logged in"})
}

// VerifyLogin completes an administrator login with the emailed code.
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	sess, err := h.svc.VerifyAdmin(r.Context(), pendingEmail(r), req)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	h.cookies.SetSession(w, sess.Tokens)
	h.cookies.ClearPending(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "you are logged in"})
}

func (h *AuthHandler) RequestPasswordChange(w http.ResponseWriter, r *http.Request) {
	if h.cookies.resendLocked(r) {
		writeDomainError(w, h.log, r, ErrResendWait)
		return
	}
	var req domain.SendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	issued, err := h.svc.RequestPasswordChange(r.Context(), req, r.URL.Path)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	h.cookies.SetPending(w, verification.Normalize(req.Email), issued)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: issued.Message})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), pendingEmail(r), req); err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	h.cookies.ClearPending(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "your password was changed"})
}
