package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-shop-api/internal/application/payment"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// PaymentHandler drives the browser through checkout. Every failure is an
// HTML page since the browser is mid-redirect.
type PaymentHandler struct {
	svc        payment.Service
	cookies    Cookies
	publicBase string
	log        *zap.Logger
}

func NewPaymentHandler(svc payment.Service, cookies Cookies, publicBase string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, cookies: cookies, publicBase: publicBase, log: log}
}

func (h *PaymentHandler) callbackURL() string { return h.publicBase + "/v1/payment/verify" }

// Confirm opens a gateway session for the product and redirects to it.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	url, err := h.svc.Initiate(r.Context(), id, chi.URLParam(r, "id"), h.callbackURL())
	if err != nil {
		kind := domain.KindOf(err)
		logFailure(h.log, r, kind, err)
		title := pageRetry
		if kind == domain.KindConflict || kind == domain.KindNotFound {
			title = domain.PublicMessage(err)
		}
		renderError(w, h.log, kind.HTTPStatus(), title, "")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Verify is the gateway callback. It runs behind OptionalAuth so a replayed
// callback can be matched against the caller's own session.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caller, _ := middleware.IdentityFrom(r.Context())
	res, err := h.svc.Verify(r.Context(), caller, q.Get("Authority"), q.Get("Status"))
	if err != nil {
		kind := domain.KindOf(err)
		logFailure(h.log, r, kind, err)
		status := kind.HTTPStatus()
		if kind != domain.KindValidation && kind != domain.KindNotFound {
			status = http.StatusInternalServerError
		}
		renderError(w, h.log, status, pageNotPaid, "")
		return
	}

	switch res.Outcome {
	case payment.OutcomeSettled:
		if res.Tokens.HTTP != "" {
			h.cookies.SetSession(w, res.Tokens)
		}
		ref := ""
		if res.Payment.RefID != nil {
			ref = *res.Payment.RefID
		}
		renderPage(w, h.log, http.StatusOK, "success", successPage{
			Username: res.Identity.Username,
			Email:    res.Identity.Email,
			Product:  res.Payment.Title,
			Price:    res.Payment.Amount,
			RefID:    ref,
			Link:     h.publicBase + "/product/" + res.Payment.ProductID,
		})
	case payment.OutcomeAmbiguous:
		renderError(w, h.log, http.StatusInternalServerError, pageCheckPaid, pageUnknown)
	case payment.OutcomeRejected:
		renderError(w, h.log, http.StatusBadRequest, pageNotPaid, "")
	default:
		renderError(w, h.log, http.StatusInternalServerError, pageUnknown, "")
	}
}
