// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline orchestrates chains of UMF adapter calls: it owns the
// adapter registry, the capability-based selector, an ordered list of named
// steps, and the cost ledger. Steps run sequentially (each step's result
// feeds the next step's payload) or in parallel (every step fans out from
// the same initial payload).
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"umf/platform/adapter"
	"umf/platform/shared/logger"
	"umf/platform/umf"
)

// ExecutionMode selects how a pipeline's steps are scheduled.
type ExecutionMode string

const (
	// ModeSequential runs steps in declaration order, threading each
	// result into the next step's payload.
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel fans all steps out concurrently from the same initial
	// payload and joins on completion.
	ModeParallel ExecutionMode = "parallel"
)

// Step is one named unit of work, bound to a task type and parameters.
type Step struct {
	Name     string         `json:"name"`
	TaskType umf.TaskType   `json:"task_type"`
	Params   map[string]any `json:"params,omitempty"`
}

// Pipeline sequences named steps across registered adapters. The registry,
// step list, and ledger live for the pipeline's lifetime; envelopes are
// created fresh per call.
type Pipeline struct {
	name     string
	registry *Registry
	selector *Selector
	ledger   *Ledger
	steps    []Step
	usage    UsageStore
	logger   *log.Logger
	slog     *logger.Logger
}

// Option configures a pipeline during creation.
type Option func(*Pipeline)

// WithRegistry shares an existing adapter registry with the pipeline.
func WithRegistry(r *Registry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithHealthAwareSelection makes the selector skip adapters whose health
// check currently fails.
func WithHealthAwareSelection() Option {
	return func(p *Pipeline) {
		p.selector = NewSelector(p.registry, true)
	}
}

// WithUsageStore persists per-step usage records after each execution.
func WithUsageStore(store UsageStore) Option {
	return func(p *Pipeline) {
		p.usage = store
	}
}

// WithPipelineLogger sets a custom logger.
func WithPipelineLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline. An empty name gets a generated one.
func New(name string, opts ...Option) *Pipeline {
	if name == "" {
		name = "pipeline-" + uuid.NewString()[:8]
	}

	p := &Pipeline{
		name:     name,
		registry: NewRegistry(),
		ledger:   NewLedger(),
		logger:   log.New(os.Stdout, "[UMF_PIPELINE] ", log.LstdFlags),
		slog:     logger.New("pipeline"),
	}

	// Registry option must apply before the selector binds to it.
	for _, opt := range opts {
		opt(p)
	}
	if p.selector == nil {
		p.selector = NewSelector(p.registry, false)
	} else {
		p.selector.registry = p.registry
	}

	return p
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string {
	return p.name
}

// Registry returns the pipeline's adapter registry.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// RegisterAdapter registers an adapter for every capability it declares.
func (p *Pipeline) RegisterAdapter(a adapter.Adapter) {
	p.registry.Register(a)
}

// AddStep appends a named step bound to a task type. Returns the pipeline
// for chaining. Name uniqueness and task-type membership are enforced when
// execution starts.
func (p *Pipeline) AddStep(name string, task umf.TaskType, params map[string]any) *Pipeline {
	p.steps = append(p.steps, Step{Name: name, TaskType: task, Params: params})
	return p
}

// Steps returns the declared steps in order.
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// CostAnalysis returns the ledger-derived cost summary.
func (p *Pipeline) CostAnalysis() CostAnalysis {
	return p.ledger.Analyze()
}

// Execute validates the step list and runs it in the given mode. It
// returns the mapping of step name to response envelope; use Steps() for
// declaration order. Configuration and routing errors fail the whole call;
// failures inside a single step's adapter surface as error-flagged
// responses for that step only.
func (p *Pipeline) Execute(ctx context.Context, initialPayload any, mode ExecutionMode) (map[string]*umf.ResponseEnvelope, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var (
		results map[string]*umf.ResponseEnvelope
		err     error
	)
	if mode == ModeParallel {
		results, err = p.executeParallel(ctx, initialPayload)
	} else {
		results, err = p.executeSequential(ctx, initialPayload)
	}
	if err != nil {
		return nil, err
	}

	p.ledger.RecordExecution()
	return results, nil
}

// validate rejects an empty pipeline, task types outside the allowed set,
// and duplicate step names, all before any adapter selection.
func (p *Pipeline) validate() error {
	if len(p.steps) == 0 {
		return &PipelineError{
			Pipeline: p.name,
			Code:     ErrEmptyPipeline,
			Message:  "pipeline has no steps configured",
		}
	}

	seen := make(map[string]bool, len(p.steps))
	for _, step := range p.steps {
		if step.TaskType == "" || !step.TaskType.Valid() {
			return &PipelineError{
				Pipeline: p.name,
				Step:     step.Name,
				Code:     ErrInvalidTaskType,
				Message:  fmt.Sprintf("unauthorized task type: %q", step.TaskType),
			}
		}
		if seen[step.Name] {
			return &PipelineError{
				Pipeline: p.name,
				Step:     step.Name,
				Code:     ErrDuplicateStep,
				Message:  "duplicate step name",
			}
		}
		seen[step.Name] = true
	}
	return nil
}

// executeSequential runs steps in declaration order. Each step's result
// becomes the next step's payload, including the stringified error result
// of a failed step.
func (p *Pipeline) executeSequential(ctx context.Context, initialPayload any) (map[string]*umf.ResponseEnvelope, error) {
	results := make(map[string]*umf.ResponseEnvelope, len(p.steps))
	payload := initialPayload

	for _, step := range p.steps {
		selected, err := p.selector.Select(ctx, step.TaskType)
		if err != nil {
			return nil, err
		}

		req := p.buildRequest(step, payload)
		start := time.Now()
		resp := p.executeStep(ctx, selected, req, step.Name)
		p.recordStep(ctx, step, selected, resp, time.Since(start))

		results[step.Name] = resp
		payload = resp.Result
	}

	return results, nil
}

// executeParallel fans every step out from the same initial payload. A
// single step degenerates to sequential execution. Adapter selection
// happens up front so routing errors still fail the whole call; after
// dispatch, one step's failure never aborts its siblings.
func (p *Pipeline) executeParallel(ctx context.Context, initialPayload any) (map[string]*umf.ResponseEnvelope, error) {
	if len(p.steps) == 1 {
		return p.executeSequential(ctx, initialPayload)
	}

	type dispatch struct {
		step    Step
		adapter adapter.Adapter
	}
	dispatches := make([]dispatch, 0, len(p.steps))
	for _, step := range p.steps {
		selected, err := p.selector.Select(ctx, step.TaskType)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, dispatch{step: step, adapter: selected})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*umf.ResponseEnvelope, len(p.steps))
	)

	for _, d := range dispatches {
		wg.Add(1)
		go func(d dispatch) {
			defer wg.Done()

			req := p.buildRequest(d.step, initialPayload)
			start := time.Now()
			resp := p.executeStep(ctx, d.adapter, req, d.step.Name)
			p.recordStep(ctx, d.step, d.adapter, resp, time.Since(start))

			mu.Lock()
			results[d.step.Name] = resp
			mu.Unlock()
		}(d)
	}

	wg.Wait()
	return results, nil
}

// executeStep guards a single step in either mode: an adapter that panics
// past its own runtime yields an error-flagged response instead of
// crashing the call.
func (p *Pipeline) executeStep(ctx context.Context, a adapter.Adapter, req *umf.RequestEnvelope, stepName string) (resp *umf.ResponseEnvelope) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = umf.ErrorResponse(req, fmt.Errorf("in step %q: %v", stepName, rec))
		}
	}()
	return a.Execute(ctx, req)
}

// buildRequest creates the step's request envelope: the current payload,
// the step's params as metadata merged with pipeline/step identifiers, and
// an optional priority from the params.
func (p *Pipeline) buildRequest(step Step, payload any) *umf.RequestEnvelope {
	req := umf.NewRequest(step.TaskType, payload)
	for k, v := range step.Params {
		req.Metadata[k] = v
	}
	req.Metadata["pipeline_id"] = p.name
	req.Metadata["step_name"] = step.Name
	req.Priority = req.MetaInt("priority", 0)
	return req
}

// recordStep books a completed step into the ledger, metrics, and the
// optional usage store.
func (p *Pipeline) recordStep(ctx context.Context, step Step, a adapter.Adapter, resp *umf.ResponseEnvelope, elapsed time.Duration) {
	cost := resp.Cost.EstimatedCost
	p.ledger.Record(step.Name, cost)

	status := "success"
	if resp.Cost.Error {
		status = "error"
	}
	observeStep(p.name, step.Name, status, cost, elapsed)
	p.slog.StepCompleted(p.name, resp.RequestID, step.Name, a.Name(), cost,
		float64(elapsed.Milliseconds()), resp.Cost.Error)

	if p.usage != nil {
		record := &StepUsage{
			PipelineName:  p.name,
			StepName:      step.Name,
			TaskType:      step.TaskType,
			AdapterName:   a.Name(),
			RequestID:     resp.RequestID,
			EstimatedCost: cost,
			LatencyMs:     elapsed.Milliseconds(),
			Status:        status,
			ErrorMessage:  resp.Cost.ErrorMessage,
		}
		if err := p.usage.RecordStepUsage(ctx, record); err != nil {
			p.logger.Printf("failed to record usage for step %s: %v", step.Name, err)
		}
	}
}
