// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"umf/platform/umf"
)

// StepUsage contains the usage record for one executed pipeline step.
type StepUsage struct {
	PipelineName  string
	StepName      string
	TaskType      umf.TaskType
	AdapterName   string
	RequestID     string
	EstimatedCost float64
	LatencyMs     int64
	Status        string // "success" or "error"
	ErrorMessage  string
}

// UsageStore persists step usage records for later cost reporting.
type UsageStore interface {
	RecordStepUsage(ctx context.Context, usage *StepUsage) error
	StepTotals(ctx context.Context, pipelineName string) (map[string]float64, error)
}

// PostgresUsageStore implements UsageStore on PostgreSQL.
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore creates a PostgreSQL-backed usage store.
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

// RecordStepUsage inserts one usage row.
func (s *PostgresUsageStore) RecordStepUsage(ctx context.Context, usage *StepUsage) error {
	if usage == nil {
		return errors.New("usage cannot be nil")
	}

	query := `
		INSERT INTO pipeline_step_usage (
			pipeline_name, step_name, task_type, adapter_name,
			request_id, estimated_cost_usd, latency_ms, status,
			error_message, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.PipelineName,
		usage.StepName,
		string(usage.TaskType),
		usage.AdapterName,
		usage.RequestID,
		usage.EstimatedCost,
		usage.LatencyMs,
		usage.Status,
		usage.ErrorMessage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step usage: %w", err)
	}

	return nil
}

// StepTotals returns accumulated spend per step for a pipeline.
func (s *PostgresUsageStore) StepTotals(ctx context.Context, pipelineName string) (map[string]float64, error) {
	query := `
		SELECT step_name, COALESCE(SUM(estimated_cost_usd), 0)
		FROM pipeline_step_usage
		WHERE pipeline_name = $1
		GROUP BY step_name
		ORDER BY step_name
	`

	rows, err := s.db.QueryContext(ctx, query, pipelineName)
	if err != nil {
		return nil, fmt.Errorf("failed to query step totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var step string
		var cost float64
		if err := rows.Scan(&step, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan step total: %w", err)
		}
		totals[step] = cost
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step totals: %w", err)
	}

	return totals, nil
}

// Ensure PostgresUsageStore implements UsageStore.
var _ UsageStore = (*PostgresUsageStore)(nil)
