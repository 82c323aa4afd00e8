package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the failure classes surfaced by the session core
type ErrorType string

const (
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNetwork      ErrorType = "network_failure"
	ErrorTypeServer       ErrorType = "server_error"
	ErrorTypeDecoding     ErrorType = "decoding_error"
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeInvalidToken ErrorType = "invalid_token"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// AppError represents a structured session error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Internal   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewUnauthorizedError creates an error for a 401 reply
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "Unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNetworkError creates an error for a transport-level failure
func NewNetworkError(message string, internal error) *AppError {
	return &AppError{
		Type:     ErrorTypeNetwork,
		Message:  message,
		Internal: internal,
	}
}

// NewServerError creates an error for a non-2xx, non-401 reply
func NewServerError(statusCode int, message string) *AppError {
	if message == "" {
		message = "Something went wrong. Please try again."
	}
	return &AppError{
		Type:       ErrorTypeServer,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewDecodingError creates an error for a body that could not be read or understood
func NewDecodingError(message string, internal error) *AppError {
	return &AppError{
		Type:     ErrorTypeDecoding,
		Message:  message,
		Internal: internal,
	}
}

// NewCancelledError creates an error for a flow the user or caller abandoned
func NewCancelledError(message string) *AppError {
	if message == "" {
		message = "Cancelled"
	}
	return &AppError{
		Type:    ErrorTypeCancelled,
		Message: message,
	}
}

// NewInvalidTokenError creates an error for a token that failed the shape check
func NewInvalidTokenError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidToken,
		Message: message,
	}
}

// NewUnknownError creates an error that fits no other class
func NewUnknownError(message string, internal error) *AppError {
	return &AppError{
		Type:     ErrorTypeUnknown,
		Message:  message,
		Internal: internal,
	}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsUnauthorized reports whether err is a 401
func IsUnauthorized(err error) bool {
	return Is(err, ErrorTypeUnauthorized)
}

// IsCancelled reports whether err is a cancellation
func IsCancelled(err error) bool {
	return Is(err, ErrorTypeCancelled)
}

// As converts err into an *AppError, wrapping foreign errors as unknown
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewUnknownError(err.Error(), err)
}
