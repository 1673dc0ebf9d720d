// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"log"
	"os"
	"sync"

	"umf/platform/adapter"
	"umf/platform/umf"
)

// Registry maps each task-type capability to the ordered set of adapters
// declaring support for it. Registration is append-only for the process
// lifetime and idempotent per (capability, adapter instance) pair.
// Thread-safe for concurrent access.
type Registry struct {
	mu           sync.RWMutex
	byCapability map[umf.TaskType][]adapter.Adapter
	logger       *log.Logger
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a custom logger.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byCapability: make(map[umf.TaskType][]adapter.Adapter),
		logger:       log.New(os.Stdout, "[UMF_REGISTRY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds the adapter under each capability it declares. An instance
// already present under a capability is skipped (identity equality), so
// repeated registration never creates duplicate entries.
func (r *Registry) Register(a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, capability := range a.Capabilities() {
		if containsAdapter(r.byCapability[capability], a) {
			continue
		}
		r.byCapability[capability] = append(r.byCapability[capability], a)
		r.logger.Printf("registered adapter %s for %s", a.Name(), capability)
	}
}

// containsAdapter checks identity membership.
func containsAdapter(list []adapter.Adapter, a adapter.Adapter) bool {
	for _, existing := range list {
		if existing == a {
			return true
		}
	}
	return false
}

// Candidates returns the adapters registered for a task type, in
// registration order. The returned slice is a copy.
func (r *Registry) Candidates(task umf.TaskType) []adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byCapability[task]
	out := make([]adapter.Adapter, len(list))
	copy(out, list)
	return out
}

// Capabilities returns the task types that have at least one adapter, in
// the enum's stable order.
func (r *Registry) Capabilities() []umf.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []umf.TaskType
	for _, t := range umf.AllTaskTypes {
		if len(r.byCapability[t]) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Adapters returns every distinct registered adapter in first-registration
// order.
func (r *Registry) Adapters() []adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []adapter.Adapter
	for _, t := range umf.AllTaskTypes {
		for _, a := range r.byCapability[t] {
			if !containsAdapter(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// Count returns the number of distinct registered adapters.
func (r *Registry) Count() int {
	return len(r.Adapters())
}
