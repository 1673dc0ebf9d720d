// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package umf

import (
	"context"
	"errors"
	"fmt"
)

// AdapterError represents a failure inside a backend adapter. The Retryable
// flag is a first-class classification consumed by the backoff loop:
// retryable errors are retried locally, terminal errors are converted into
// an error-flagged ResponseEnvelope.
type AdapterError struct {
	// Adapter is the name of the adapter that produced the error.
	Adapter string `json:"adapter"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the upstream HTTP status, when applicable.
	StatusCode int `json:"status_code,omitempty"`

	// Retryable marks the error as transient.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Adapter, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Adapter, e.Message)
}

// Unwrap returns the underlying error.
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// Adapter error codes.
const (
	// ErrCodeRateLimit indicates the backend rate-limited the request.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeAuth indicates authentication failure.
	ErrCodeAuth = "authentication_error"

	// ErrCodeInvalidRequest indicates a malformed request, including a
	// context entry missing role or content.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeServerError indicates a backend 5xx-equivalent failure.
	ErrCodeServerError = "server_error"

	// ErrCodeTimeout indicates the request exceeded its timeout.
	ErrCodeTimeout = "timeout"

	// ErrCodeUnavailable indicates the backend is unavailable.
	ErrCodeUnavailable = "unavailable"

	// ErrCodeCircuitOpen indicates the adapter's circuit breaker is open
	// and the call failed fast without reaching the backend.
	ErrCodeCircuitOpen = "circuit_open"

	// ErrCodeLimiterRejected indicates the adapter's own rate limiter
	// rejected the request before any backend call.
	ErrCodeLimiterRejected = "limiter_rejected"
)

// NewAdapterError creates an AdapterError with the retryable flag derived
// from the code.
func NewAdapterError(adapterName, code, message string) *AdapterError {
	return &AdapterError{
		Adapter:   adapterName,
		Code:      code,
		Message:   message,
		Retryable: retryableCode(code),
	}
}

// retryableCode reports whether an error code is transient.
func retryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an arbitrary error for the retry loop. Adapter
// errors carry the classification explicitly; a context deadline counts as
// a timeout and is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}
