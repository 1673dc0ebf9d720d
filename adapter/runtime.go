// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"umf/platform/umf"
)

// Reserved keys that bypass API key format validation in demos and tests.
const (
	DemoAPIKey = "demo-key"
	TestAPIKey = "test-key"
)

// minAPIKeyLength is the minimum accepted length for a real API key.
const minAPIKeyLength = 10

// Runtime carries the shared per-adapter state: request/error counters,
// the optional rate limiter and circuit breaker, and the error-wrapping
// execute guard. Concrete adapters embed a *Runtime and implement
// Capabilities plus their backend call.
type Runtime struct {
	name   string
	apiKey string
	logger *log.Logger

	requestCount atomic.Int64
	errorCount   atomic.Int64

	limiter RateLimiter
	breaker *CircuitBreaker
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRateLimiter attaches a rate limiter checked before every execution.
func WithRateLimiter(l RateLimiter) RuntimeOption {
	return func(r *Runtime) {
		r.limiter = l
	}
}

// WithCircuitBreaker attaches a circuit breaker consulted before every
// execution and fed with the outcome of each one.
func WithCircuitBreaker(cb *CircuitBreaker) RuntimeOption {
	return func(r *Runtime) {
		r.breaker = cb
	}
}

// WithRuntimeLogger sets a custom logger.
func WithRuntimeLogger(l *log.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates the shared runtime for an adapter. Credential
// validation happens here, before any pipeline execution: a malformed API
// key is a construction-time error, not a per-request one.
func NewRuntime(name, apiKey string, opts ...RuntimeOption) (*Runtime, error) {
	if err := validateAPIKey(name, apiKey); err != nil {
		return nil, err
	}

	r := &Runtime{
		name:   name,
		apiKey: apiKey,
		logger: log.New(os.Stdout, fmt.Sprintf("[ADAPTER:%s] ", name), log.LstdFlags),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// validateAPIKey enforces the API key format. The reserved demo/test keys
// are exempt; an empty key means the backend needs no credential.
func validateAPIKey(name, apiKey string) error {
	if apiKey == "" || apiKey == DemoAPIKey || apiKey == TestAPIKey {
		return nil
	}
	if len(strings.TrimSpace(apiKey)) < minAPIKeyLength {
		return fmt.Errorf("invalid API key format for %s", name)
	}
	return nil
}

// Name returns the adapter instance name.
func (r *Runtime) Name() string {
	return r.name
}

// APIKey returns the configured credential.
func (r *Runtime) APIKey() string {
	return r.apiKey
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *log.Logger {
	return r.logger
}

// RequestCount reports accepted requests; used for least-loaded selection.
func (r *Runtime) RequestCount() int64 {
	return r.requestCount.Load()
}

// ErrorCount reports failed requests.
func (r *Runtime) ErrorCount() int64 {
	return r.errorCount.Load()
}

// HealthCheck is the default liveness probe. Adapters with a real endpoint
// to ping shadow this method.
func (r *Runtime) HealthCheck(ctx context.Context) bool {
	return true
}

// Breaker returns the attached circuit breaker, or nil.
func (r *Runtime) Breaker() *CircuitBreaker {
	return r.breaker
}

// Guard runs fn with the full resilience envelope: it counts the request,
// consults the rate limiter and circuit breaker, applies the request's
// timeout, stamps the execution time, and converts any failure into an
// error-flagged response so no error escapes the adapter boundary.
func (r *Runtime) Guard(ctx context.Context, req *umf.RequestEnvelope, fn func(context.Context) (*umf.ResponseEnvelope, error)) *umf.ResponseEnvelope {
	r.requestCount.Add(1)
	start := time.Now()

	resp, err := r.guarded(ctx, req, fn)
	if err != nil {
		r.errorCount.Add(1)
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		r.logger.Printf("request %s failed: %v", req.RequestID, err)
		wrapped := umf.ErrorResponse(req, err)
		wrapped.ExecutionTime = time.Since(start)
		return wrapped
	}

	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}
	if resp.ExecutionTime == 0 {
		resp.ExecutionTime = time.Since(start)
	}
	return resp
}

// guarded applies the pre-flight checks and timeout around fn.
func (r *Runtime) guarded(ctx context.Context, req *umf.RequestEnvelope, fn func(context.Context) (*umf.ResponseEnvelope, error)) (resp *umf.ResponseEnvelope, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("adapter %s panicked: %v", r.name, rec)
		}
	}()

	if r.breaker != nil && !r.breaker.Allow() {
		return nil, umf.NewAdapterError(r.name, umf.ErrCodeCircuitOpen,
			"circuit breaker is open, failing fast")
	}

	if r.limiter != nil {
		if limitErr := r.limiter.Allow(ctx, r.name); limitErr != nil {
			return nil, limitErr
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	return fn(ctx)
}
