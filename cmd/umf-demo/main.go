// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is a runnable demonstration of the UMF pipeline: it
// registers an OpenAI-compatible adapter and a local optimizer adapter,
// chains a code-generation step into a code-optimization step, fans out a
// parallel analysis run, and prints the resulting cost analysis.
//
// Usage:
//
//	./umf-demo
//
// Environment Variables:
//
//	OPENAI_API_KEY - real key for live calls (default: demo-key, offline)
//	DATABASE_URL   - optional PostgreSQL DSN for step usage persistence
//	REDIS_URL      - optional Redis URL for distributed rate limiting
//	PORT           - optional; when set, serves the status API on this port
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"umf/platform/adapter"
	"umf/platform/adapter/openai"
	"umf/platform/adapter/optimizer"
	"umf/platform/pipeline"
	"umf/platform/shared/logger"
	"umf/platform/umf"
)

func main() {
	slog := logger.New("demo")
	ctx := context.Background()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = adapter.DemoAPIKey
		slog.Warn("", "", "OPENAI_API_KEY not set, running in demo mode", nil)
	}

	opts := []pipeline.Option{}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		opts = append(opts, pipeline.WithUsageStore(pipeline.NewPostgresUsageStore(db)))
		slog.Info("", "", "step usage persistence enabled", nil)
	}

	p := pipeline.New("demo-pipeline", opts...)

	openaiCfg := openai.Config{APIKey: apiKey, RequestsPerMinute: 60}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		limiter, err := adapter.DialRedisRateLimiter(redisURL, 60)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer limiter.Close()
		openaiCfg.Limiter = limiter
		slog.Info("", "", "distributed rate limiting enabled", nil)
	}

	openaiAdapter, err := openai.New(openaiCfg)
	if err != nil {
		log.Fatalf("failed to create openai adapter: %v", err)
	}
	p.RegisterAdapter(openaiAdapter)

	p.RegisterAdapter(optimizer.New())

	if port := os.Getenv("PORT"); port != "" {
		api := pipeline.NewStatusAPI(p)
		go func() {
			slog.Info(p.Name(), "", "status API listening", map[string]any{"port": port})
			if err := http.ListenAndServe(":"+port, api.Handler()); err != nil {
				log.Fatalf("status API failed: %v", err)
			}
		}()
	}

	// Sequential: generate code, then optimize the generated result.
	p.AddStep("generate", umf.TaskCodeGeneration, map[string]any{"language": "python"})
	p.AddStep("optimize", umf.TaskCodeOptimization, nil)

	start := time.Now()
	results, err := p.Execute(ctx, "Write a function that deduplicates a list while preserving order", pipeline.ModeSequential)
	if err != nil {
		log.Fatalf("pipeline execution failed: %v", err)
	}
	slog.InfoWithDuration(p.Name(), "", "sequential run completed",
		float64(time.Since(start).Milliseconds()), map[string]any{"steps": len(results)})

	for _, step := range p.Steps() {
		printStep(step.Name, results[step.Name])
	}

	// Parallel: independent analyses of the same payload.
	analysis := pipeline.New("analysis-pipeline", pipeline.WithRegistry(p.Registry()))
	analysis.AddStep("review", umf.TaskAnalysis, map[string]any{"focus": "correctness"})
	analysis.AddStep("summary", umf.TaskTextGeneration, map[string]any{"style": "brief"})

	parallelResults, err := analysis.Execute(ctx, "def dedupe(xs):\n    return list(dict.fromkeys(xs))", pipeline.ModeParallel)
	if err != nil {
		log.Fatalf("parallel execution failed: %v", err)
	}
	for _, step := range analysis.Steps() {
		printStep(step.Name, parallelResults[step.Name])
	}

	printCosts("sequential", p.CostAnalysis())
	printCosts("parallel", analysis.CostAnalysis())
}

func printStep(name string, resp *umf.ResponseEnvelope) {
	fmt.Println(formatStep(name, resp))
}

func formatStep(name string, resp *umf.ResponseEnvelope) string {
	status := "ok"
	if resp.Cost.Error {
		status = "error"
	}
	return fmt.Sprintf("--- step %s [%s] (%dms, $%.6f)\n%v",
		name, status, resp.ExecutionTime.Milliseconds(), resp.Cost.EstimatedCost, resp.Result)
}

func printCosts(label string, analysis pipeline.CostAnalysis) {
	out, _ := json.MarshalIndent(analysis, "", "  ")
	fmt.Printf("=== %s cost analysis\n%s\n", label, out)
}
