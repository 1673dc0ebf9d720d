// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umf/platform/adapter"
	"umf/platform/umf"
)

// fakeAdapter is a scriptable in-memory adapter for orchestration tests.
type fakeAdapter struct {
	name    string
	caps    []umf.TaskType
	healthy bool
	cost    float64
	exec    func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope

	count atomic.Int64

	mu   sync.Mutex
	seen []*umf.RequestEnvelope
}

func newFakeAdapter(name string, caps ...umf.TaskType) *fakeAdapter {
	return &fakeAdapter{name: name, caps: caps, healthy: true}
}

func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) Capabilities() []umf.TaskType { return f.caps }
func (f *fakeAdapter) RequestCount() int64          { return f.count.Load() }

func (f *fakeAdapter) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeAdapter) Execute(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
	f.count.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()

	if f.exec != nil {
		return f.exec(ctx, req)
	}
	return &umf.ResponseEnvelope{
		TaskType:  req.TaskType,
		Result:    fmt.Sprintf("%s:%v", f.name, req.Payload),
		RequestID: req.RequestID,
		Cost:      umf.CostInfo{EstimatedCost: f.cost},
	}
}

func (f *fakeAdapter) requests() []*umf.RequestEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*umf.RequestEnvelope, len(f.seen))
	copy(out, f.seen)
	return out
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func TestExecuteSequentialChaining(t *testing.T) {
	gen := newFakeAdapter("generator", umf.TaskCodeGeneration)
	gen.cost = 0.002
	opt := newFakeAdapter("optimizer", umf.TaskCodeOptimization)

	p := New("code-pipeline")
	p.RegisterAdapter(gen)
	p.RegisterAdapter(opt)
	p.AddStep("generate", umf.TaskCodeGeneration, map[string]any{"language": "python"}).
		AddStep("optimize", umf.TaskCodeOptimization, nil)

	results, err := p.Execute(context.Background(), "def f(): pass", ModeSequential)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "generator:def f(): pass", results["generate"].Result)
	// The second step consumed the first step's result as its payload.
	assert.Equal(t, "optimizer:generator:def f(): pass", results["optimize"].Result)

	// Step order is available from the pipeline itself.
	steps := p.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "generate", steps[0].Name)
	assert.Equal(t, "optimize", steps[1].Name)

	// Metadata carries step params plus the injected identifiers.
	genReqs := gen.requests()
	require.Len(t, genReqs, 1)
	assert.Equal(t, "python", genReqs[0].Metadata["language"])
	assert.Equal(t, "code-pipeline", genReqs[0].Metadata["pipeline_id"])
	assert.Equal(t, "generate", genReqs[0].Metadata["step_name"])

	// Each step got its own request envelope.
	optReqs := opt.requests()
	require.Len(t, optReqs, 1)
	assert.NotEqual(t, genReqs[0].RequestID, optReqs[0].RequestID)
}

func TestExecuteSequentialFailureFeedsForward(t *testing.T) {
	failing := newFakeAdapter("flaky", umf.TaskCodeGeneration)
	failing.exec = func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
		return umf.ErrorResponse(req, fmt.Errorf("backend down"))
	}
	opt := newFakeAdapter("optimizer", umf.TaskCodeOptimization)

	p := New("code-pipeline")
	p.RegisterAdapter(failing)
	p.RegisterAdapter(opt)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)
	p.AddStep("optimize", umf.TaskCodeOptimization, nil)

	results, err := p.Execute(context.Background(), "payload", ModeSequential)
	require.NoError(t, err)

	assert.True(t, results["generate"].Cost.Error)

	// The stringified error result flows into the next step's payload.
	optReqs := opt.requests()
	require.Len(t, optReqs, 1)
	assert.Equal(t, "Error: backend down", optReqs[0].Payload)
	assert.False(t, results["optimize"].Cost.Error)
}

func TestExecuteSequentialPanicIsolation(t *testing.T) {
	panicky := newFakeAdapter("panicky", umf.TaskCodeGeneration)
	panicky.exec = func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
		panic("nil map write")
	}
	opt := newFakeAdapter("optimizer", umf.TaskCodeOptimization)

	p := New("code-pipeline")
	p.RegisterAdapter(panicky)
	p.RegisterAdapter(opt)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)
	p.AddStep("optimize", umf.TaskCodeOptimization, nil)

	results, err := p.Execute(context.Background(), "payload", ModeSequential)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.True(t, results["generate"].Cost.Error)
	assert.Contains(t, results["generate"].Cost.ErrorMessage, "nil map write")

	// The recovered step's stringified error still feeds the next step.
	optReqs := opt.requests()
	require.Len(t, optReqs, 1)
	assert.Contains(t, optReqs[0].Payload, "nil map write")
	assert.False(t, results["optimize"].Cost.Error)
}

func TestExecuteParallelIsolation(t *testing.T) {
	analyze := newFakeAdapter("analyzer", umf.TaskAnalysis)
	analyze.cost = 0.01
	failing := newFakeAdapter("texter", umf.TaskTextGeneration)
	failing.exec = func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
		return umf.ErrorResponse(req, fmt.Errorf("quota exhausted"))
	}

	p := New("fanout")
	p.RegisterAdapter(analyze)
	p.RegisterAdapter(failing)
	p.AddStep("review", umf.TaskAnalysis, nil)
	p.AddStep("summary", umf.TaskTextGeneration, nil)

	results, err := p.Execute(context.Background(), "shared input", ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The failing step did not abort its sibling.
	assert.False(t, results["review"].Cost.Error)
	assert.True(t, results["summary"].Cost.Error)

	// Both steps received the same initial payload.
	assert.Equal(t, "shared input", analyze.requests()[0].Payload)
	assert.Equal(t, "shared input", failing.requests()[0].Payload)
}

func TestExecuteParallelPanicIsolation(t *testing.T) {
	panicky := newFakeAdapter("panicky", umf.TaskAnalysis)
	panicky.exec = func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
		panic("nil map write")
	}
	stable := newFakeAdapter("stable", umf.TaskTextGeneration)

	p := New("fanout")
	p.RegisterAdapter(panicky)
	p.RegisterAdapter(stable)
	p.AddStep("review", umf.TaskAnalysis, nil)
	p.AddStep("summary", umf.TaskTextGeneration, nil)

	results, err := p.Execute(context.Background(), "input", ModeParallel)
	require.NoError(t, err)

	require.True(t, results["review"].Cost.Error)
	assert.Contains(t, results["review"].Cost.ErrorMessage, "nil map write")
	assert.False(t, results["summary"].Cost.Error)
}

func TestExecuteParallelSingleStep(t *testing.T) {
	a := newFakeAdapter("analyzer", umf.TaskAnalysis)

	p := New("single")
	p.RegisterAdapter(a)
	p.AddStep("review", umf.TaskAnalysis, nil)

	results, err := p.Execute(context.Background(), "input", ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "analyzer:input", results["review"].Result)
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *Pipeline
		wantCode string
	}{
		{
			name:     "empty pipeline",
			build:    func() *Pipeline { return New("empty") },
			wantCode: ErrEmptyPipeline,
		},
		{
			name: "invalid task type",
			build: func() *Pipeline {
				p := New("bad-task")
				p.AddStep("step", umf.TaskType("sorcery"), nil)
				return p
			},
			wantCode: ErrInvalidTaskType,
		},
		{
			name: "duplicate step names",
			build: func() *Pipeline {
				p := New("dup")
				p.RegisterAdapter(newFakeAdapter("a", umf.TaskAnalysis))
				p.AddStep("same", umf.TaskAnalysis, nil)
				p.AddStep("same", umf.TaskAnalysis, nil)
				return p
			},
			wantCode: ErrDuplicateStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.build()
			results, err := p.Execute(context.Background(), "x", ModeSequential)
			require.Error(t, err)
			assert.Nil(t, results)

			var pe *PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCode, pe.Code)
		})
	}
}

func TestExecuteNoAdapterIsFatal(t *testing.T) {
	p := New("unrouted")
	p.AddStep("deploy", umf.TaskCodeDeployment, nil)

	results, err := p.Execute(context.Background(), "x", ModeSequential)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "no adapter found for task type: code_deployment")
}

func TestExecuteLoadBalancing(t *testing.T) {
	first := newFakeAdapter("first", umf.TaskAnalysis)
	second := newFakeAdapter("second", umf.TaskAnalysis)

	p := New("balanced")
	p.RegisterAdapter(first)
	p.RegisterAdapter(second)
	p.AddStep("review", umf.TaskAnalysis, nil)

	for i := 0; i < 6; i++ {
		_, err := p.Execute(context.Background(), "x", ModeSequential)
		require.NoError(t, err)
	}

	// Least-loaded selection keeps the two adapters within one request of
	// each other.
	diff := first.RequestCount() - second.RequestCount()
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, int64(1))
	assert.Positive(t, first.RequestCount())
	assert.Positive(t, second.RequestCount())
}

func TestCostLedgerAccumulation(t *testing.T) {
	gen := newFakeAdapter("generator", umf.TaskCodeGeneration)
	gen.cost = 0.003
	opt := newFakeAdapter("optimizer", umf.TaskCodeOptimization)
	opt.cost = 0.001

	p := New("costed")
	p.RegisterAdapter(gen)
	p.RegisterAdapter(opt)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)
	p.AddStep("optimize", umf.TaskCodeOptimization, nil)

	for i := 0; i < 2; i++ {
		_, err := p.Execute(context.Background(), "x", ModeSequential)
		require.NoError(t, err)
	}

	analysis := p.CostAnalysis()

	// Total equals the sum of per-step costs across both executions.
	sum := 0.0
	for _, c := range analysis.CostByStep {
		sum += c
	}
	assert.InDelta(t, sum, analysis.TotalCost, 1e-12)
	assert.InDelta(t, 2*(0.003+0.001), analysis.TotalCost, 1e-12)
	assert.InDelta(t, 0.006, analysis.CostByStep["generate"], 1e-12)
	assert.InDelta(t, 0.002, analysis.CostByStep["optimize"], 1e-12)
	assert.Equal(t, "generate", analysis.HighestCostStep)
	assert.InDelta(t, 0.004, analysis.AverageCostPerExecution, 1e-12)
	assert.NotEmpty(t, analysis.Suggestions)
}

// capturingStore records usage rows in memory.
type capturingStore struct {
	mu      sync.Mutex
	records []*StepUsage
	fail    bool
}

func (s *capturingStore) RecordStepUsage(ctx context.Context, usage *StepUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("store unavailable")
	}
	s.records = append(s.records, usage)
	return nil
}

func (s *capturingStore) StepTotals(ctx context.Context, pipelineName string) (map[string]float64, error) {
	return nil, nil
}

func TestUsageStoreRecording(t *testing.T) {
	store := &capturingStore{}
	gen := newFakeAdapter("generator", umf.TaskCodeGeneration)
	gen.cost = 0.005

	p := New("persisted", WithUsageStore(store))
	p.RegisterAdapter(gen)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)

	results, err := p.Execute(context.Background(), "x", ModeSequential)
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "persisted", rec.PipelineName)
	assert.Equal(t, "generate", rec.StepName)
	assert.Equal(t, umf.TaskCodeGeneration, rec.TaskType)
	assert.Equal(t, "generator", rec.AdapterName)
	assert.Equal(t, results["generate"].RequestID, rec.RequestID)
	assert.Equal(t, 0.005, rec.EstimatedCost)
	assert.Equal(t, "success", rec.Status)
}

func TestUsageStoreFailureDoesNotAbort(t *testing.T) {
	store := &capturingStore{fail: true}
	gen := newFakeAdapter("generator", umf.TaskCodeGeneration)

	p := New("persisted", WithUsageStore(store))
	p.RegisterAdapter(gen)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)

	results, err := p.Execute(context.Background(), "x", ModeSequential)
	require.NoError(t, err)
	assert.False(t, results["generate"].Cost.Error)
}

func TestGeneratedPipelineName(t *testing.T) {
	p := New("")
	assert.True(t, strings.HasPrefix(p.Name(), "pipeline-"))
	assert.Len(t, p.Name(), len("pipeline-")+8)
}

func TestWithSharedRegistry(t *testing.T) {
	shared := NewRegistry()
	shared.Register(newFakeAdapter("analyzer", umf.TaskAnalysis))

	p := New("borrower", WithRegistry(shared))
	p.AddStep("review", umf.TaskAnalysis, nil)

	results, err := p.Execute(context.Background(), "x", ModeSequential)
	require.NoError(t, err)
	assert.False(t, results["review"].Cost.Error)
}

func TestPriorityParamThreadsThrough(t *testing.T) {
	a := newFakeAdapter("analyzer", umf.TaskAnalysis)

	p := New("prioritized")
	p.RegisterAdapter(a)
	p.AddStep("review", umf.TaskAnalysis, map[string]any{"priority": 7})

	_, err := p.Execute(context.Background(), "x", ModeSequential)
	require.NoError(t, err)

	reqs := a.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 7, reqs[0].Priority)
}

func TestRecordStepEmitsStructuredLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	gen := newFakeAdapter("generator", umf.TaskCodeGeneration)
	gen.cost = 0.002
	failing := newFakeAdapter("texter", umf.TaskTextGeneration)
	failing.exec = func(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
		return umf.ErrorResponse(req, fmt.Errorf("quota exhausted"))
	}

	p := New("log-pipeline")
	p.RegisterAdapter(gen)
	p.RegisterAdapter(failing)
	p.AddStep("generate", umf.TaskCodeGeneration, nil)
	p.AddStep("summary", umf.TaskTextGeneration, nil)

	_, err := p.Execute(context.Background(), "payload", ModeSequential)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"step completed"`)
	assert.Contains(t, out, `"step failed"`)
	assert.Contains(t, out, `"pipeline":"log-pipeline"`)
	assert.Contains(t, out, `"step":"generate"`)
	assert.Contains(t, out, `"adapter":"generator"`)
}
