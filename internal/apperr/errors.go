// Package apperr defines the typed business errors raised by the services
// and their translation to HTTP status codes at the API boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP boundary.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindStock             Kind = "stock"
	KindEmptyCart         Kind = "empty_cart"
	KindInvalidTransition Kind = "invalid_transition"
	KindAccessDenied      Kind = "access_denied"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

// Error is the single error type returned by the service layer.
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "orders.Create"
	Message string // Human-readable, safe to show to clients unless Kind is internal
	Err     error  // Underlying cause
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an error of the given kind.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return E(KindValidation, op, fmt.Sprintf(format, args...))
}

func NotFound(op, what string) *Error {
	return E(KindNotFound, op, what+" not found")
}

func Stock(op, format string, args ...any) *Error {
	return E(KindStock, op, fmt.Sprintf(format, args...))
}

func AccessDenied(op, message string) *Error {
	return E(KindAccessDenied, op, message)
}

func InvalidTransition(op, from, to string) *Error {
	return E(KindInvalidTransition, op, fmt.Sprintf("cannot change order status from %q to %q", from, to))
}

func Internal(op string, err error) *Error {
	return Wrap(KindInternal, op, "internal error", err)
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for anything else.
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

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindStock, KindEmptyCart, KindInvalidTransition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that may be shown to a client.
// Internal failures never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
