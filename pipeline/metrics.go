// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umf_pipeline_steps_total",
			Help: "Pipeline steps executed, by pipeline, step, and outcome.",
		},
		[]string{"pipeline", "step", "status"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umf_pipeline_step_duration_seconds",
			Help:    "Wall-clock duration of pipeline steps.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "step"},
	)

	stepCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umf_pipeline_step_cost_dollars_total",
			Help: "Estimated spend per pipeline step, in dollars.",
		},
		[]string{"pipeline", "step"},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal, stepDuration, stepCost)
}

// observeStep books one completed step into all step-level metrics.
func observeStep(pipeline, step, status string, cost float64, elapsed time.Duration) {
	stepsTotal.WithLabelValues(pipeline, step, status).Inc()
	stepDuration.WithLabelValues(pipeline, step).Observe(elapsed.Seconds())
	if cost > 0 {
		stepCost.WithLabelValues(pipeline, step).Add(cost)
	}
}
