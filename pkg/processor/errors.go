package processor

import "github.com/openhqm/openhqm/pkg/errors"

const (
	CodeTransient = "PROCESSOR_TRANSIENT"
	CodeFatal     = "PROCESSOR_FATAL"
)

// ErrTransient wraps a network/timeout failure talking to the upstream
// endpoint. The worker retries these with backoff up to max_retries.
func ErrTransient(msg string, err error) *errors.AppError {
	return errors.New(CodeTransient, msg, err)
}

// ErrFatal wraps a configuration failure (unknown endpoint, unresolvable
// transform). The worker sends these straight to the DLQ with no retry.
func ErrFatal(msg string, err error) *errors.AppError {
	return errors.New(CodeFatal, msg, err)
}

// IsTransient reports whether err should be retried by the worker.
func IsTransient(err error) bool {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == CodeTransient
}

// IsFatal reports whether err should go straight to the DLQ with no retry.
func IsFatal(err error) bool {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == CodeFatal
}
