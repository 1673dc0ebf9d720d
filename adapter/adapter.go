// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the contract every backend adapter satisfies and
// a shared resilience runtime (rate limiting, circuit breaking, retry,
// caching, request counting) that concrete adapters opt into via
// composition.
package adapter

import (
	"context"

	"umf/platform/umf"
)

// Adapter is the capability-declaring, request-executing interface the
// pipeline routes through. Implementations must be safe for concurrent use:
// the same adapter instance may serve parallel pipeline steps.
type Adapter interface {
	// Name returns the unique identifier for this adapter instance.
	Name() string

	// Capabilities declares the task types this adapter can serve.
	// Pure: no side effects.
	Capabilities() []umf.TaskType

	// Execute runs a request against the backend and never returns a raw
	// error: any internal failure comes back as a well-formed response
	// envelope with Cost.Error set.
	Execute(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope

	// HealthCheck is a cheap liveness probe. Defaults to true for adapters
	// without a meaningful check.
	HealthCheck(ctx context.Context) bool

	// RequestCount reports how many requests this instance has accepted.
	// The selector uses it for least-loaded balancing.
	RequestCount() int64
}

// CanServe reports whether the adapter declares the given task type.
func CanServe(a Adapter, task umf.TaskType) bool {
	for _, c := range a.Capabilities() {
		if c == task {
			return true
		}
	}
	return false
}
