// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecordAccumulates(t *testing.T) {
	l := NewLedger()

	l.Record("generate", 0.003)
	l.Record("optimize", 0.001)
	l.Record("generate", 0.002)

	assert.InDelta(t, 0.006, l.TotalCost(), 1e-12)

	analysis := l.Analyze()
	assert.InDelta(t, 0.005, analysis.CostByStep["generate"], 1e-12)
	assert.InDelta(t, 0.001, analysis.CostByStep["optimize"], 1e-12)
	assert.Equal(t, "generate", analysis.HighestCostStep)
}

func TestLedgerTotalsEqualSum(t *testing.T) {
	l := NewLedger()
	steps := []string{"a", "b", "c"}
	costs := []float64{0.1, 0.25, 0.05}

	for round := 0; round < 3; round++ {
		for i, step := range steps {
			l.Record(step, costs[i])
		}
		l.RecordExecution()
	}

	analysis := l.Analyze()
	sum := 0.0
	for _, c := range analysis.CostByStep {
		sum += c
	}
	assert.InDelta(t, sum, analysis.TotalCost, 1e-12)
	assert.InDelta(t, 0.4, analysis.AverageCostPerExecution, 1e-12)
}

func TestLedgerEmptyAnalysis(t *testing.T) {
	l := NewLedger()
	analysis := l.Analyze()

	assert.Zero(t, analysis.TotalCost)
	assert.Empty(t, analysis.CostByStep)
	assert.Zero(t, analysis.AverageCostPerExecution)
	assert.Empty(t, analysis.HighestCostStep)
	assert.Empty(t, analysis.Suggestions)
}

func TestLedgerSuggestionNamesDominantStep(t *testing.T) {
	l := NewLedger()
	l.Record("cheap", 0.001)
	l.Record("expensive", 0.9)
	l.RecordExecution()

	analysis := l.Analyze()
	require.Len(t, analysis.Suggestions, 1)
	assert.Contains(t, analysis.Suggestions[0], "expensive")
}

func TestLedgerConcurrentRecording(t *testing.T) {
	l := NewLedger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("step", 0.01)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 0.5, l.TotalCost(), 1e-9)
}
