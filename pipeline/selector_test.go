// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umf/platform/umf"
)

func TestSelectorInvalidTask(t *testing.T) {
	s := NewSelector(NewRegistry(), false)

	for _, task := range []umf.TaskType{"", "sorcery"} {
		_, err := s.Select(context.Background(), task)
		require.Error(t, err)
		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, ErrInvalidTaskType, pe.Code)
	}
}

func TestSelectorNoAdapter(t *testing.T) {
	s := NewSelector(NewRegistry(), false)

	_, err := s.Select(context.Background(), umf.TaskCodeDeployment)
	require.Error(t, err)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrNoAdapter, pe.Code)
	assert.Contains(t, err.Error(), "no adapter found for task type: code_deployment")
}

func TestSelectorPicksLeastLoaded(t *testing.T) {
	r := NewRegistry()
	busy := newFakeAdapter("busy", umf.TaskAnalysis)
	busy.count.Store(10)
	idle := newFakeAdapter("idle", umf.TaskAnalysis)
	r.Register(busy)
	r.Register(idle)

	s := NewSelector(r, false)
	selected, err := s.Select(context.Background(), umf.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "idle", selected.Name())
}

func TestSelectorTieBreaksByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first := newFakeAdapter("first", umf.TaskAnalysis)
	second := newFakeAdapter("second", umf.TaskAnalysis)
	r.Register(first)
	r.Register(second)

	s := NewSelector(r, false)
	selected, err := s.Select(context.Background(), umf.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "first", selected.Name())
}

func TestSelectorHealthAwareSkipsUnhealthy(t *testing.T) {
	r := NewRegistry()
	sick := newFakeAdapter("sick", umf.TaskAnalysis)
	sick.healthy = false
	well := newFakeAdapter("well", umf.TaskAnalysis)
	r.Register(sick)
	r.Register(well)

	s := NewSelector(r, true)
	selected, err := s.Select(context.Background(), umf.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "well", selected.Name())
}

func TestSelectorAllUnhealthy(t *testing.T) {
	r := NewRegistry()
	sick := newFakeAdapter("sick", umf.TaskAnalysis)
	sick.healthy = false
	r.Register(sick)

	s := NewSelector(r, true)
	_, err := s.Select(context.Background(), umf.TaskAnalysis)
	require.Error(t, err)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrNoAuthorizedAdapter, pe.Code)

	// Without health awareness the sick adapter is still eligible.
	lax := NewSelector(r, false)
	selected, err := lax.Select(context.Background(), umf.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "sick", selected.Name())
}
