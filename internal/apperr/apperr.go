// Package apperr defines the error taxonomy shared by services, middleware
// and handlers. Every error that reaches an HTTP response is an *Error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error and decides its HTTP status
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	}
	return "internal"
}

// HTTPStatus maps the kind to a response status
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error is an application error with a stable machine-readable code
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by code so that sentinels work with errors.Is even
// after WithDetails or Wrap produced a copy.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the response status for the error
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// Wrap returns a copy of e carrying cause
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// WithDetails returns a copy of e with extra client-visible details
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithMessage returns a copy of e with a different message
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// New creates an error of the given kind
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a 400 error about a single field
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Field: field}
}

// Conflict creates a 409 error about a single field
func Conflict(code, field, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Field: field}
}

// Internal wraps an unexpected error. The cause is never shown to clients.
func Internal(cause error) *Error {
	return ErrInternal.Wrap(cause)
}

// From converts any error into an *Error. Unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err
func KindOf(err error) Kind {
	return From(err).Kind
}
