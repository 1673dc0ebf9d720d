// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"umf/platform/umf"
)

// Cache is a bounded response cache with FIFO eviction: when full, the
// oldest inserted key is evicted regardless of access pattern. The
// insertion queue and the lookup map are kept as an explicit pair so the
// eviction order is evident and testable.
type Cache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]*umf.ResponseEnvelope
	order   []string
}

// NewCache creates a cache holding at most capacity responses. A
// non-positive capacity yields a cache that never stores anything.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*umf.ResponseEnvelope),
	}
}

// Get returns the cached response for key, if present.
func (c *Cache) Get(key string) (*umf.ResponseEnvelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	return resp, ok
}

// Put stores a response, evicting the oldest entry when at capacity.
// Overwriting an existing key does not change its queue position.
func (c *Cache) Put(key string, resp *umf.ResponseEnvelope) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = resp
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = resp
	c.order = append(c.order, key)
}

// Len reports the number of cached responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheKey derives a deterministic key from the request fields that define
// a cacheable identity: task type, payload, and metadata (sorted by key so
// map iteration order cannot leak into the digest).
func CacheKey(req *umf.RequestEnvelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task=%s;payload=%v;", req.TaskType, req.Payload)

	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, req.Metadata[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
