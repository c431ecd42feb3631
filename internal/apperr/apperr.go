// Package apperr defines the error taxonomy surfaced by the broker's
// request paths. Handlers classify failures into a small set of kinds;
// the API layer maps kinds to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	// BadRequest means input validation failed; the message names the
	// offending field.
	BadRequest Kind = iota + 1
	// Unauthorized means missing or unknown credentials.
	Unauthorized
	// Forbidden means credentials are valid but not permitted for the
	// requested channel.
	Forbidden
	// NotFound means no such subscriber, alert or publisher.
	NotFound
	// Conflict means a duplicate alert hash, duplicate publisher name,
	// or an already-registered wallet.
	Conflict
	// PaymentRequired means pricing is active and the subscriber
	// balance cannot cover a charged query.
	PaymentRequired
	// Transient means a storage or network hiccup; the caller may retry.
	Transient
	// Internal means a broken invariant; logged, caller gets an opaque
	// message.
	Internal
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case PaymentRequired:
		return "payment_required"
	case Transient:
		return "transient"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the status code the API layer writes for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case PaymentRequired:
		return http.StatusPaymentRequired
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Details carries structured context that
// the API layer serializes into the response body (for example the
// authorized channel list on a Forbidden publish).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, wrapped: err}
}

// WithDetails attaches structured context to the error and returns it.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the kind from err, defaulting to Internal for
// unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
