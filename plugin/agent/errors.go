package agent

import (
	"errors"
	"fmt"
)

// ErrorCode classifies agent call failures.
type ErrorCode string

const (
	// ErrCodeUnknownService indicates the service name has no configured
	// endpoint. Configuration mistakes are never retried.
	ErrCodeUnknownService ErrorCode = "UNKNOWN_SERVICE"
	// ErrCodeNetwork indicates a transport-level failure (dial, timeout,
	// connection reset).
	ErrCodeNetwork ErrorCode = "NETWORK"
	// ErrCodeRetryableStatus indicates the endpoint answered with a
	// retryable status (429 or 5xx) on every attempt.
	ErrCodeRetryableStatus ErrorCode = "RETRYABLE_STATUS"
	// ErrCodeStatus indicates a non-retryable HTTP error status.
	ErrCodeStatus ErrorCode = "NON_RETRYABLE_STATUS"
)

// Error is a structured error for agent calls.
type Error struct {
	Code    ErrorCode
	Service string
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] agent %q: %s: %v", e.Code, e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] agent %q: %s", e.Code, e.Service, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an agent error.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
