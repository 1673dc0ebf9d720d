// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package umf defines the Universal Message Format: the vendor-neutral
// request/response envelope contract that every backend adapter speaks.
// Envelopes are created fresh per call and carry routing, cost, and
// telemetry metadata end-to-end through a pipeline.
package umf

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the kind of work a request asks for. It is a closed
// enumerated set: workflow steps and adapter capabilities are validated
// against it at the boundary, so unknown task types never reach an adapter.
type TaskType string

// The allowed task types.
const (
	TaskCodeGeneration   TaskType = "code_generation"
	TaskCodeOptimization TaskType = "code_optimization"
	TaskCodeDeployment   TaskType = "code_deployment"
	TaskTextGeneration   TaskType = "text_generation"
	TaskImageGeneration  TaskType = "image_generation"
	TaskAnalysis         TaskType = "analysis"
)

// AllTaskTypes lists every allowed task type in a stable order.
var AllTaskTypes = []TaskType{
	TaskCodeGeneration,
	TaskCodeOptimization,
	TaskCodeDeployment,
	TaskTextGeneration,
	TaskImageGeneration,
	TaskAnalysis,
}

// Valid reports whether the task type belongs to the allowed set.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTaskType converts a raw string into a TaskType, rejecting empty
// strings and anything outside the allowed set.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if s == "" {
		return "", fmt.Errorf("task type is required")
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown task type %q", s)
	}
	return t, nil
}

// Message is a single conversation/history entry threaded through a request.
// Both fields are mandatory; adapters reject a request whose context
// contains a malformed entry before making any backend call.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate checks that the entry carries both a role and content.
func (m Message) Validate() error {
	if m.Role == "" || m.Content == "" {
		return fmt.Errorf("context entry must contain both role and content")
	}
	return nil
}

// RetryPolicy bounds an adapter's local retry loop for transient failures.
// The wait before attempt n is BackoffFactor**n seconds.
type RetryPolicy struct {
	MaxRetries    int     `json:"max_retries"`
	BackoffFactor float64 `json:"backoff_factor"`
}

// DefaultRetryPolicy returns the policy applied when a request does not set
// one explicitly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BackoffFactor: 2.0}
}

// RequestEnvelope is the standard request format consumed by adapters.
type RequestEnvelope struct {
	// TaskType selects capability-based routing. Must be in the allowed set.
	TaskType TaskType `json:"task_type"`

	// Payload is the actual content forwarded to the backend. It is
	// type-erased: plain text, structured data, or a prior step's result.
	Payload any `json:"payload"`

	// RequestID is generated once and stays stable for the life of the
	// request; the response echoes it back for correlation.
	RequestID string `json:"request_id"`

	// Context holds ordered conversation/history entries.
	Context []Message `json:"context,omitempty"`

	// Metadata carries step parameters (token limits, temperature, ...)
	// merged with orchestrator-injected identifiers.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Priority is an adapter-consumable hint; the orchestrator only
	// threads it through.
	Priority int `json:"priority,omitempty"`

	// Timeout bounds a single adapter call. Zero means adapter default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Retry configures the adapter's local retry loop.
	Retry RetryPolicy `json:"retry"`
}

// NewRequest builds a request envelope with a fresh request id and
// defaulted retry policy.
func NewRequest(task TaskType, payload any) *RequestEnvelope {
	return &RequestEnvelope{
		TaskType:  task,
		Payload:   payload,
		RequestID: uuid.NewString(),
		Metadata:  make(map[string]any),
		Retry:     DefaultRetryPolicy(),
	}
}

// ValidateContext checks every context entry for the mandatory role and
// content fields. Adapters call this before translating a request.
func (r *RequestEnvelope) ValidateContext() error {
	for i, msg := range r.Context {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("context entry %d: %w", i, err)
		}
	}
	return nil
}

// MetaString returns a string metadata value, or fallback when absent.
func (r *RequestEnvelope) MetaString(key, fallback string) string {
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return fallback
}

// MetaInt returns an integer metadata value, or fallback when absent.
// JSON round-trips store numbers as float64, so both forms are accepted.
func (r *RequestEnvelope) MetaInt(key string, fallback int) int {
	switch v := r.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// MetaFloat returns a float metadata value, or fallback when absent.
func (r *RequestEnvelope) MetaFloat(key string, fallback float64) float64 {
	switch v := r.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// MetaBool returns a boolean metadata value, or fallback when absent.
func (r *RequestEnvelope) MetaBool(key string, fallback bool) bool {
	if v, ok := r.Metadata[key].(bool); ok {
		return v
	}
	return fallback
}

// CostInfo reports what a request cost and whether it failed. Every
// response carries one; the orchestrator's ledger reads EstimatedCost and
// callers inspect Error per step.
type CostInfo struct {
	EstimatedCost float64 `json:"estimated_cost"`
	InputCost     float64 `json:"input_cost,omitempty"`
	OutputCost    float64 `json:"output_cost,omitempty"`
	Error         bool    `json:"error,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// ResponseEnvelope is the standard response format produced by adapters.
// The contract never lets a raw error escape the adapter boundary: an
// internal failure is represented as a well-formed response with
// Cost.Error set and a human-readable Result.
type ResponseEnvelope struct {
	// TaskType echoes the originating request's task type. It identifies
	// the pipeline step, not a re-routing target.
	TaskType TaskType `json:"task_type"`

	// Result is the backend's answer; in sequential mode it becomes the
	// next step's payload.
	Result any `json:"result"`

	// RequestID links back to the originating request.
	RequestID string `json:"request_id"`

	// Cost is read by the orchestrator's ledger.
	Cost CostInfo `json:"cost_info"`

	// ExecutionTime, Metadata, ModelInfo and QualityMetrics are optional
	// enrichment for observability.
	ExecutionTime  time.Duration      `json:"execution_time,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	ModelInfo      map[string]any     `json:"model_info,omitempty"`
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
}

// ErrorResponse wraps a failure into the standard response shape: zero
// cost, the error flag set, and a stringified message as the result.
func ErrorResponse(req *RequestEnvelope, err error) *ResponseEnvelope {
	return &ResponseEnvelope{
		TaskType:  req.TaskType,
		Result:    fmt.Sprintf("Error: %v", err),
		RequestID: req.RequestID,
		Cost: CostInfo{
			EstimatedCost: 0,
			Error:         true,
			ErrorMessage:  err.Error(),
		},
	}
}
