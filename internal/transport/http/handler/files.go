package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	fileapp "github.com/go-shop-api/internal/application/file"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// FileHandler redirects to product files; denials are HTML because the
// route is opened by the browser directly.
type FileHandler struct {
	svc fileapp.Service
	log *zap.Logger
}

func NewFileHandler(svc fileapp.Service, log *zap.Logger) *FileHandler {
	return &FileHandler{svc: svc, log: log}
}

func (h *FileHandler) Product(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	url, err := h.svc.Link(r.Context(), id,
		chi.URLParam(r, "productId"), chi.URLParam(r, "chapter"), chi.URLParam(r, "name"))
	if err != nil {
		kind := domain.KindOf(err)
		logFailure(h.log, r, kind, err)
		renderError(w, h.log, kind.HTTPStatus(), domain.PublicMessage(err), "")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
