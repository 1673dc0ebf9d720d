// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import "sync"

// Minimum request volume before the breaker may trip. Below this the error
// rate is too noisy to act on.
const breakerMinRequests = 10

// breakerErrorRate is the error ratio above which the breaker opens.
const breakerErrorRate = 0.5

// CircuitBreaker is a binary open/closed fail-fast guard. It opens once
// more than half of a meaningful volume of requests have failed, and stays
// open until explicitly Reset. There is no automatic half-open probing.
type CircuitBreaker struct {
	mu           sync.Mutex
	requestCount int64
	errorCount   int64
	open         bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{}
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return !cb.open
}

// RecordSuccess records a completed request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.requestCount++
}

// RecordFailure records a failed request and re-evaluates the trip
// condition: error_count / max(request_count, 1) > 0.5 with more than
// breakerMinRequests observed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	cb.errorCount++

	total := cb.requestCount
	if total < 1 {
		total = 1
	}
	if float64(cb.errorCount)/float64(total) > breakerErrorRate && cb.requestCount > breakerMinRequests {
		cb.open = true
	}
}

// Open reports whether the breaker has tripped.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.requestCount = 0
	cb.errorCount = 0
	cb.open = false
}

// Counts returns the observed request and error totals.
func (cb *CircuitBreaker) Counts() (requests, errors int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.requestCount, cb.errorCount
}
