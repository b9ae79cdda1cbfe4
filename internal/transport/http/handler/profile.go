package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-shop-api/internal/application/payment"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// ProfileHandler serves the signed-in user's own resources.
type ProfileHandler struct {
	payments payment.Service
	cookies  Cookies
	log      *zap.Logger
}

func NewProfileHandler(payments payment.Service, cookies Cookies, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{payments: payments, cookies: cookies, log: log}
}

func (h *ProfileHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.ClearSession(w)
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "you are logged out"})
}

func (h *ProfileHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeDomainError(w, h.log, r, domain.ErrUnauthorized)
		return
	}
	list, err := h.payments.Purchases(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchasesEnvelope{Data: list})
}

// UserPurchases lets an administrator look up another user's purchases.
func (h *ProfileHandler) UserPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.Purchases(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchasesEnvelope{Data: list})
}
