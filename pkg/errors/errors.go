// Package errors defines the errors the API renders into its response
// envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable machine-readable code and the HTTP
// status it maps to. Internal is logged but never sent to clients.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches any AppError with the same code, so a copy produced by
// WithMessage or WithInternal still matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithInternal returns a copy carrying err as the hidden cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy with a client-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = message
	return &cpy
}

var (
	ErrUnauthorized = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden    = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound     = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest   = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrConflict     = New("CONFLICT", "Request conflicts with the current state", http.StatusConflict)
	ErrUnavailable  = New("SERVICE_UNAVAILABLE", "Service temporarily unavailable", http.StatusServiceUnavailable)

	ErrInternalServer   = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrMethodNotAllowed = New("METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
	ErrTooManyRequests  = New("RATE_LIMITED", "Too many requests, slow down", http.StatusTooManyRequests)

	// ErrNotDismissible rejects dismissing a reminder flagged as mandatory.
	ErrNotDismissible = New("REMINDER_NOT_DISMISSIBLE", "Reminder cannot be dismissed", http.StatusConflict)
	// ErrUnknownStream rejects a realtime subscription to a stream the hub does not publish.
	ErrUnknownStream = New("UNKNOWN_STREAM", "Unknown realtime stream", http.StatusBadRequest)
)

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// Wrap reports err as an internal server error with a client-facing message.
func Wrap(err error, message string) *AppError {
	return ErrInternalServer.WithMessage(message).WithInternal(err)
}

// FromError returns err's AppError, or wraps err as an internal server error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest returns ErrBadRequest with message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
