// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"umf/platform/umf"
)

// rateLimitWindow is the sliding window over which requests are counted.
const rateLimitWindow = time.Minute

// RateLimiter rejects requests once a per-key ceiling is reached within the
// sliding window. The key is usually the adapter instance name.
type RateLimiter interface {
	// Allow returns nil if the request may proceed, or a rate-limit error.
	Allow(ctx context.Context, key string) error
}

// SlidingWindowLimiter is the in-memory limiter: it tracks the timestamps
// of accepted requests and rejects when the count inside the current
// 60-second window meets the configured requests-per-minute ceiling.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu         sync.Mutex
	timestamps map[string][]time.Time
}

// NewSlidingWindowLimiter creates a limiter with the given
// requests-per-minute ceiling. A non-positive limit disables limiting.
func NewSlidingWindowLimiter(requestsPerMinute int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:      requestsPerMinute,
		window:     rateLimitWindow,
		now:        time.Now,
		timestamps: make(map[string][]time.Time),
	}
}

// Allow implements RateLimiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) error {
	if l.limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Drop timestamps that fell out of the window.
	kept := l.timestamps[key][:0]
	for _, ts := range l.timestamps[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps[key] = kept

	if len(kept) >= l.limit {
		err := umf.NewAdapterError(key, umf.ErrCodeLimiterRejected,
			fmt.Sprintf("rate limit exceeded: %d requests/minute (limit: %d)", len(kept), l.limit))
		// The adapter's own limiter rejecting is not a backend signal worth
		// retrying immediately.
		err.Retryable = false
		return err
	}

	l.timestamps[key] = append(kept, now)
	return nil
}

// InWindow reports how many accepted requests currently sit inside the
// window for a key.
func (l *SlidingWindowLimiter) InWindow(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	count := 0
	for _, ts := range l.timestamps[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
