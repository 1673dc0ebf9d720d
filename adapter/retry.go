// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"math"
	"time"

	"umf/platform/umf"
)

// RetryConfig configures the backoff loop around a backend call.
type RetryConfig struct {
	// Policy bounds attempts and sets the backoff base. The wait before
	// retry n is Policy.BackoffFactor**n units.
	Policy umf.RetryPolicy

	// Unit is the duration of one backoff unit. Defaults to one second;
	// tests shrink it.
	Unit time.Duration

	// RetryIf decides whether an error is transient. Defaults to
	// umf.IsRetryable.
	RetryIf func(error) bool
}

// RetryWithBackoff runs fn up to Policy.MaxRetries+1 times, sleeping
// BackoffFactor**attempt units between attempts, retrying only errors the
// classifier marks transient. The sleep honors context cancellation.
func RetryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	unit := config.Unit
	if unit == 0 {
		unit = time.Second
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = umf.IsRetryable
	}

	for attempt := 0; attempt <= config.Policy.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryIf(err) {
			return zero, err
		}
		if attempt >= config.Policy.MaxRetries {
			break
		}

		wait := time.Duration(math.Pow(config.Policy.BackoffFactor, float64(attempt)) * float64(unit))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, lastErr
}
