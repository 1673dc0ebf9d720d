// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging for UMF platform
components.

# Overview

The logger outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (pipeline, adapter, demo, etc.)
  - Instance ID and container name (for distributed tracing)
  - Pipeline name (correlates entries of one pipeline)
  - Request ID (correlates entries of one envelope)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("pipeline")

Log messages with pipeline and request context:

	log.Info("code-pipeline", "req-456", "Executing step", map[string]any{
	    "step": "generate",
	    "task": "code_generation",
	})

Log errors with status codes:

	log.ErrorWithCode("code-pipeline", "req-456", "Adapter call failed", 500, err, nil)

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("code-pipeline", "req-456", "Step completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
