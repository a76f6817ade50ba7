// Package errors defines the application error type shared by the service,
// repository and handler layers. Codes are machine readable and are sent to
// clients verbatim in the "error" field of error responses.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeInvalidInput   Code = "invalid_input"
	ErrCodeNotFound       Code = "not_found"
	ErrCodeConflict       Code = "conflict"
	ErrCodeForbidden      Code = "forbidden"
	ErrCodeInternal       Code = "internal"
	ErrCodeUnavailable    Code = "unavailable"
	ErrCodeNoCredentials  Code = "no_credentials"
	ErrCodeRefreshExpired Code = "refresh_expired"
	ErrCodeAuthentication Code = "authentication_error"
)

// Error is the application error.
type Error struct {
	Code    Code
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps the error code to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNoCredentials, ErrCodeRefreshExpired, ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RequiresReconnection reports whether the caller has to re-authorize the
// accounting connection before retrying.
func (e *Error) RequiresReconnection() bool {
	switch e.Code {
	case ErrCodeNoCredentials, ErrCodeRefreshExpired, ErrCodeAuthentication:
		return true
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with a code that wraps a cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// InvalidInput creates a validation error for a field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
