// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"umf/platform/umf"
)

// RedisRateLimiter is the distributed variant of the sliding-window
// limiter, for deployments where the same logical adapter runs in several
// processes. It keeps a sorted set of request timestamps per key and counts
// the entries inside the current window atomically via a pipeline.
//
// On Redis errors the limiter fails open: a broken limiter should degrade
// throughput control, not availability.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
}

// NewRedisRateLimiter creates a limiter backed by the given Redis client
// with a requests-per-minute ceiling.
func NewRedisRateLimiter(client *redis.Client, requestsPerMinute int) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: requestsPerMinute}
}

// DialRedisRateLimiter connects to a Redis URL (redis://host:port[/db]) and
// returns a limiter, verifying the connection with a ping.
func DialRedisRateLimiter(redisURL string, requestsPerMinute int) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRateLimiter(client, requestsPerMinute), nil
}

// Allow implements RateLimiter.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) error {
	if l.limit <= 0 {
		return nil
	}

	now := time.Now()
	redisKey := "umf:ratelimit:" + key

	pipe := l.client.Pipeline()

	// Slide the window: drop timestamps older than one minute.
	minScore := now.Add(-rateLimitWindow).UnixNano()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", minScore))

	countCmd := pipe.ZCard(ctx, redisKey)

	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, redisKey, 2*rateLimitWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open.
		return nil
	}

	if count := countCmd.Val(); count >= int64(l.limit) {
		limErr := umf.NewAdapterError(key, umf.ErrCodeLimiterRejected,
			fmt.Sprintf("rate limit exceeded: %d requests/minute (limit: %d)", count, l.limit))
		limErr.Retryable = false
		return limErr
	}

	return nil
}

// Flush removes all rate limit state for a key.
func (l *RedisRateLimiter) Flush(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, "umf:ratelimit:"+key).Err(); err != nil {
		return fmt.Errorf("failed to flush rate limit data: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}
