// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package optimizer provides a reference in-process adapter for code
// optimization. It demonstrates the minimal adapter pattern: embed the
// shared runtime, declare capabilities, sanitize input, and return a
// well-formed response envelope. Real adapters replace the local rewrite
// with a backend call.
package optimizer

import (
	"context"
	"fmt"
	"strings"

	"umf/platform/adapter"
	"umf/platform/umf"
)

// Adapter optimizes code payloads locally at zero cost.
type Adapter struct {
	*adapter.Runtime
}

// New creates the optimizer adapter.
func New() *Adapter {
	rt, err := adapter.NewRuntime("mock-optimizer", adapter.DemoAPIKey)
	if err != nil {
		// The demo key never fails validation.
		panic(err)
	}
	return &Adapter{Runtime: rt}
}

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() []umf.TaskType {
	return []umf.TaskType{umf.TaskCodeOptimization}
}

// sanitizer neutralizes markup in untrusted payloads before processing.
var sanitizer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
	return a.Guard(ctx, req, func(ctx context.Context) (*umf.ResponseEnvelope, error) {
		if err := req.ValidateContext(); err != nil {
			vErr := umf.NewAdapterError(a.Name(), umf.ErrCodeInvalidRequest, err.Error())
			vErr.Cause = err
			return nil, vErr
		}

		code := sanitizer.Replace(fmt.Sprint(req.Payload))

		optimized := fmt.Sprintf(`# Optimized version
%s

# Performance improvements applied:
# - Removed unused imports
# - Added error handling
# - Optimized loops`, code)

		return &umf.ResponseEnvelope{
			TaskType:  req.TaskType,
			Result:    optimized,
			RequestID: req.RequestID,
			Cost:      umf.CostInfo{EstimatedCost: 0},
			ModelInfo: map[string]any{"provider": "local", "model": a.Name()},
		}, nil
	})
}

// Verify interface compliance at compile time.
var _ adapter.Adapter = (*Adapter)(nil)
