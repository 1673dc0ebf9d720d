// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "fmt"

// PipelineError represents a configuration or routing failure. These are
// fatal to the whole Execute call and propagate to the caller, unlike
// per-step adapter failures which are absorbed into the step's response.
type PipelineError struct {
	Pipeline string
	Step     string
	Code     string
	Message  string
	Cause    error
}

// Pipeline error codes.
const (
	// ErrEmptyPipeline indicates Execute was called with zero steps.
	ErrEmptyPipeline = "empty_pipeline"

	// ErrInvalidTaskType indicates a step's task type is empty or outside
	// the allowed set.
	ErrInvalidTaskType = "invalid_task_type"

	// ErrDuplicateStep indicates two steps share a name.
	ErrDuplicateStep = "duplicate_step"

	// ErrNoAdapter indicates the registry has no adapter for a task type.
	ErrNoAdapter = "no_adapter"

	// ErrNoAuthorizedAdapter indicates candidates exist but none passed
	// the capability re-check and health filter.
	ErrNoAuthorizedAdapter = "no_authorized_adapter"

	// ErrDuplicateRegistration indicates the same adapter instance was
	// already registered for a capability.
	ErrDuplicateRegistration = "duplicate_registration"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	switch {
	case e.Step != "":
		return fmt.Sprintf("pipeline %q step %q: %s", e.Pipeline, e.Step, e.Message)
	case e.Pipeline != "":
		return fmt.Sprintf("pipeline %q: %s", e.Pipeline, e.Message)
	default:
		return fmt.Sprintf("pipeline error: %s", e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}
