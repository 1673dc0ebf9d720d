// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"

	"umf/platform/adapter"
	"umf/platform/umf"
)

// Selector picks an adapter for a task type: it filters registered
// candidates to those still declaring the capability (and, when
// health-aware, currently healthy), then load-balances by lowest cumulative
// request count with ties broken by registration order.
//
// This is deliberately simple round-robin-by-count balancing, not weighted
// or latency-aware.
type Selector struct {
	registry    *Registry
	healthAware bool
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *Registry, healthAware bool) *Selector {
	return &Selector{registry: registry, healthAware: healthAware}
}

// Select returns the adapter to execute a step of the given task type.
// Routing failures here are fatal to the whole pipeline execution.
func (s *Selector) Select(ctx context.Context, task umf.TaskType) (adapter.Adapter, error) {
	if task == "" || !task.Valid() {
		return nil, &PipelineError{
			Code:    ErrInvalidTaskType,
			Message: fmt.Sprintf("invalid task type: %q", task),
		}
	}

	candidates := s.registry.Candidates(task)
	if len(candidates) == 0 {
		return nil, &PipelineError{
			Code:    ErrNoAdapter,
			Message: fmt.Sprintf("no adapter found for task type: %s", task),
		}
	}

	// Defensive re-check: capabilities may be dynamic, and unhealthy
	// adapters are skipped in health-aware mode.
	authorized := candidates[:0]
	for _, a := range candidates {
		if !adapter.CanServe(a, task) {
			continue
		}
		if s.healthAware && !a.HealthCheck(ctx) {
			continue
		}
		authorized = append(authorized, a)
	}

	if len(authorized) == 0 {
		return nil, &PipelineError{
			Code:    ErrNoAuthorizedAdapter,
			Message: fmt.Sprintf("no authorized adapter found for task type: %s", task),
		}
	}

	best := authorized[0]
	for _, a := range authorized[1:] {
		if a.RequestCount() < best.RequestCount() {
			best = a
		}
	}
	return best, nil
}
