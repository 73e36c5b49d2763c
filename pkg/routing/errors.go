package routing

import "github.com/openhqm/openhqm/pkg/errors"

const (
	CodeNoRoute       = "ROUTING_NO_ROUTE"
	CodeInvalidConfig = "ROUTING_INVALID_CONFIG"
	CodeTransform     = "ROUTING_TRANSFORM_FAILED"
)

// ErrNoRoute is returned when no route matches and no fallback is
// configured. It is fatal: the worker sends the message straight to the DLQ.
func ErrNoRoute() *errors.AppError {
	return errors.New(CodeNoRoute, "no route matched and no default endpoint configured", nil)
}

// ErrInvalidConfig wraps a routing configuration validation failure.
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid routing configuration: "+msg, err)
}

// ErrTransform wraps a transform evaluation failure (bad jq/jsonpath
// expression at runtime, non-JSON template result).
func ErrTransform(msg string, err error) *errors.AppError {
	return errors.New(CodeTransform, msg, err)
}
