// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "sync"

// Ledger accumulates per-step and total cost for one pipeline instance.
// It is never reset automatically: repeated Execute calls on the same
// pipeline keep adding to it. All mutation happens under the mutex because
// parallel steps complete concurrently.
type Ledger struct {
	mu         sync.Mutex
	totalCost  float64
	costByStep map[string]float64
	executions int64
}

// NewLedger creates an empty cost ledger.
func NewLedger() *Ledger {
	return &Ledger{costByStep: make(map[string]float64)}
}

// Record adds a step's cost to its per-step bucket and the running total.
func (l *Ledger) Record(step string, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.costByStep[step] += cost
	l.totalCost += cost
}

// RecordExecution counts one completed Execute call, for averaging.
func (l *Ledger) RecordExecution() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executions++
}

// TotalCost returns the accumulated total.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalCost
}

// CostAnalysis is the summary derived from the ledger.
type CostAnalysis struct {
	TotalCost               float64            `json:"total_cost"`
	CostByStep              map[string]float64 `json:"cost_by_step"`
	AverageCostPerExecution float64            `json:"average_cost_per_execution"`
	HighestCostStep         string             `json:"highest_cost_step,omitempty"`
	Suggestions             []string           `json:"suggestions,omitempty"`
}

// Analyze derives the cost summary. Purely read-only.
func (l *Ledger) Analyze() CostAnalysis {
	l.mu.Lock()
	defer l.mu.Unlock()

	analysis := CostAnalysis{
		TotalCost:  l.totalCost,
		CostByStep: make(map[string]float64, len(l.costByStep)),
	}
	for step, cost := range l.costByStep {
		analysis.CostByStep[step] = cost
		if analysis.HighestCostStep == "" || cost > analysis.CostByStep[analysis.HighestCostStep] {
			analysis.HighestCostStep = step
		}
	}

	if l.executions > 0 {
		analysis.AverageCostPerExecution = l.totalCost / float64(l.executions)
	}

	if analysis.HighestCostStep != "" && analysis.CostByStep[analysis.HighestCostStep] > 0 {
		analysis.Suggestions = append(analysis.Suggestions,
			"step \""+analysis.HighestCostStep+"\" dominates spend; consider a cheaper model or caching")
	}

	return analysis
}
