package queue

import "github.com/openhqm/openhqm/pkg/errors"

// Error codes for queue operations. Transient and connection-failure codes
// are retried by ResilientQueue (see IsTransient); other codes are not.
const (
	CodeConnectionFailed = "QUEUE_CONN_FAILED"
	CodeTransient        = "QUEUE_TRANSIENT"
	CodeFatal             = "QUEUE_FATAL"
	CodeAckFailed         = "QUEUE_ACK_FAILED"
	CodeRejectFailed      = "QUEUE_REJECT_FAILED"
	CodeInvalidConfig     = "QUEUE_INVALID_CONFIG"
)

// ErrTransient wraps a network/availability failure. ResilientQueue retries
// these with backoff up to its configured number of attempts.
func ErrTransient(err error) *errors.AppError {
	return errors.New(CodeTransient, "transient queue error", err)
}

// ErrFatal wraps a misconfiguration (unknown queue, bad driver config).
// ResilientQueue returns these without retrying.
func ErrFatal(msg string, err error) *errors.AppError {
	return errors.New(CodeFatal, msg, err)
}

// ErrConnectionFailed wraps a broker connection failure.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to queue broker", err)
}

// ErrAckFailed wraps an acknowledgment failure.
func ErrAckFailed(err error) *errors.AppError {
	return errors.New(CodeAckFailed, "failed to acknowledge message", err)
}

// ErrRejectFailed wraps a reject/nack failure.
func ErrRejectFailed(err error) *errors.AppError {
	return errors.New(CodeRejectFailed, "failed to reject message", err)
}

// ErrInvalidConfig wraps an invalid driver configuration.
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid queue configuration: "+msg, err)
}

// IsTransient reports whether err should be retried by ResilientQueue.
func IsTransient(err error) bool {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == CodeTransient || appErr.Code == CodeConnectionFailed
}
