package domain

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping. Every error a service returns
// either carries a Kind or is treated as KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimit
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code a handler should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a kind-tagged error. Message is safe to show to end users unless
// Kind is KindInternal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// E builds a kind-tagged error.
func E(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap tags cause with kind and a user-facing message.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Sentinel errors for kind discrimination with errors.Is.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrBadRequest   = E(KindValidation, "bad request")
	ErrUnauthorized = E(KindAuth, "unauthorized")
	ErrForbidden    = E(KindForbidden, "forbidden")
	ErrNotFound     = E(KindNotFound, "not found")
	ErrConflict     = E(KindConflict, "conflict")
	ErrRateLimited  = E(KindRateLimit, "too many requests")
	ErrGateway      = E(KindGateway, "external service failure")
)

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// PublicMessage returns the text a client may see for err.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "internal server error"
}

// Storage outcomes the payment flow branches on. These are plain errors, not
// kinds, because callers never surface them to clients directly.
var (
	ErrAlreadySettled = errors.New("payment already settled")
	ErrStaleWrite     = errors.New("record changed since it was read")
)
