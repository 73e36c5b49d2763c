/*
Package errors provides structured error handling for the system.

It defines a standard AppError type that includes:
  - Error Code (standardized strings like NOT_FOUND, INTERNAL)
  - Message (human-readable description)
  - Underlying Error (chaining)

It also provides helpers for common error scenarios and conversion to HTTP status codes.
*/
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes shared across packages.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL"
	CodeUnavailable     = "UNAVAILABLE"
	CodeTimeout         = "TIMEOUT"
)

// AppError is the standard structured error used across the system.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with an explicit code.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap annotates err with a message, classified as CodeInternal unless err
// already carries an AppError code.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// NotFound creates a CodeNotFound AppError.
func NotFound(message string, err error) *AppError {
	return New(CodeNotFound, message, err)
}

// Conflict creates a CodeConflict AppError.
func Conflict(message string, err error) *AppError {
	return New(CodeConflict, message, err)
}

// InvalidArgument creates a CodeInvalidArgument AppError.
func InvalidArgument(message string, err error) *AppError {
	return New(CodeInvalidArgument, message, err)
}

// Forbidden creates a CodeForbidden AppError.
func Forbidden(message string, err error) *AppError {
	return New(CodeForbidden, message, err)
}

// Unauthorized creates a CodeUnauthorized AppError.
func Unauthorized(message string, err error) *AppError {
	return New(CodeUnauthorized, message, err)
}

// Internal creates a CodeInternal AppError.
func Internal(message string, err error) *AppError {
	return New(CodeInternal, message, err)
}

// Unavailable creates a CodeUnavailable AppError.
func Unavailable(message string, err error) *AppError {
	return New(CodeUnavailable, message, err)
}

// Is re-exports the standard library's errors.Is so callers need only import this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports the standard library's errors.As so callers need only import this package.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ToHTTPStatus maps an AppError's code to an HTTP status code.
// Non-AppError errors map to 500.
func ToHTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
