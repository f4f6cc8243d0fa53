package common

import (
	"net/http"
)

// Kind classifies an error into the response taxonomy. The value is the
// machine-readable code carried in the error envelope; handlers and
// collaborators raise tagged errors deliberately instead of having the
// boundary infer a category from message text.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthenticated Kind = "AUTHENTICATION_FAILED"
	KindForbidden       Kind = "AUTHORIZATION_FAILED"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindRateLimited     Kind = "RATE_LIMIT_EXCEEDED"
	KindInternal        Kind = "INTERNAL_ERROR"
	KindUnavailable     Kind = "SERVICE_UNAVAILABLE"
)

// StatusOf maps a taxonomy kind to its HTTP status. Unknown kinds map to
// 500.
func StatusOf(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a tagged error carrying a taxonomy kind as a first-class field.
// Field optionally names the offending request field for validation
// failures.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

// NewError creates a tagged error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a tagged error of the given kind wrapping a cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a 400-kind error, optionally naming the offending
// field.
func Validation(message, field string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// Unauthenticated creates a 401-kind error.
func Unauthenticated(message string) *Error {
	return NewError(KindUnauthenticated, message)
}

// Forbidden creates a 403-kind error.
func Forbidden(message string) *Error {
	return NewError(KindForbidden, message)
}

// NotFound creates a 404-kind error.
func NotFound(message string) *Error {
	return NewError(KindNotFound, message)
}

// Conflict creates a 409-kind error.
func Conflict(message string) *Error {
	return NewError(KindConflict, message)
}

// RateLimited creates a 429-kind error.
func RateLimited(message string) *Error {
	return NewError(KindRateLimited, message)
}

// Internal creates a 500-kind error wrapping the underlying cause. The
// cause is logged but never sent to clients.
func Internal(message string, cause error) *Error {
	return WrapError(KindInternal, message, cause)
}

// Unavailable creates a 503-kind error.
func Unavailable(message string) *Error {
	return NewError(KindUnavailable, message)
}
