// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"net/http"

	"github.com/go-faster/errors"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindAlreadyPaid
	KindExpired
	KindConflict
	KindUpstreamUnavailable
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindAlreadyPaid:
		return "already_paid"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error carries a Kind and a human-readable message safe to return to callers.
// Err is the underlying cause and is only logged.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may repeat the request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error { return New(KindForbidden, message) }
func NotFound(message string) *Error { return New(KindNotFound, message) }
func Conflict(message string) *Error { return New(KindConflict, message) }
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstreamUnavailable, message, err)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "An Internal Error Occurred", err)
}

var (
	ErrAlreadyPaid = New(KindAlreadyPaid, "PayLink has already been paid")
	ErrExpired     = New(KindExpired, "PayLink has expired")
	ErrTxNotFound  = New(KindUpstreamUnavailable, "Transaction not found on blockchain")
)

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "An Internal Error Occurred"
}

// StatusCode maps err onto an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindAlreadyPaid, KindExpired, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
