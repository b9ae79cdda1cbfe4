package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-shop-api/internal/domain"
	"go.uber.org/zap"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PurchasesEnvelope wraps the purchase history.
type PurchasesEnvelope struct {
	Data []domain.Payment `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeDomainError maps err to its status code and a client-safe message.
// Internal and gateway failures are logged as errors, the rest at debug.
func writeDomainError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	kind := domain.KindOf(err)
	logFailure(log, r, kind, err)
	writeError(w, kind.HTTPStatus(), domain.PublicMessage(err))
}

func logFailure(log *zap.Logger, r *http.Request, kind domain.Kind, err error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", kind.String()),
		zap.Error(err),
	}
	if kind == domain.KindInternal || kind == domain.KindGateway {
		log.Error("request failed", fields...)
		return
	}
	log.Debug("request rejected", fields...)
}

var errBadBody = domain.E(domain.KindValidation, "invalid request body")

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Wrap(domain.KindValidation, errBadBody.Message, err)
	}
	return nil
}
