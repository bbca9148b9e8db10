// Package apperr maps domain errors onto the HTTP/error-kind taxonomy used
// uniformly across the transport layer.
package apperr

import (
	"errors"
	"net/http"

	"github.com/mallquest/mallquest/internal/domain"
)

// Kind classifies an error for transport-layer handling and logging.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindRateLimited    Kind = "rate_limited"
	KindTransient      Kind = "transient"
	KindFatal          Kind = "fatal"
)

// Error wraps an underlying error with a Kind and a stable machine code,
// the shape returned in APIResponse.Error.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with the given kind, code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies err against the domain sentinel table and returns an Error.
// Unrecognized errors are treated as fatal/internal.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case domain.IsNotFoundError(err):
		return &Error{Kind: KindNotFound, Code: "not_found", Message: "resource not found", Err: err}
	case domain.IsConflictError(err):
		return &Error{Kind: KindConflict, Code: "conflict", Message: "conflicting update", Err: err}
	case errors.Is(err, domain.ErrRateLimited):
		return &Error{Kind: KindRateLimited, Code: "rate_limited", Message: "too many requests", Err: err}
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrTokenRevoked), errors.Is(err, domain.ErrMFARequired), errors.Is(err, domain.ErrMFAInvalid):
		return &Error{Kind: KindAuthentication, Code: "unauthenticated", Message: "authentication failed", Err: err}
	case errors.Is(err, domain.ErrAccountLocked):
		return &Error{Kind: KindAuthorization, Code: "account_locked", Message: "account temporarily locked", Err: err}
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrMaxLevelReached), errors.Is(err, domain.ErrMissionNotClaimable), errors.Is(err, domain.ErrInvalidPolicy):
		return &Error{Kind: KindValidation, Code: "invalid_request", Message: err.Error(), Err: err}
	case errors.Is(err, domain.ErrBusy):
		return &Error{Kind: KindTransient, Code: "busy", Message: "try again shortly", Err: err}
	default:
		return &Error{Kind: KindFatal, Code: "internal_error", Message: "internal error", Err: err}
	}
}

// HTTPStatus maps a Kind to the response status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
