// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured JSON logging tagged with the component and
// host it runs on.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is one structured log line. Pipeline and RequestID tie the line
// back to the execution that produced it.
type LogEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      LogLevel       `json:"level"`
	Component  string         `json:"component"`
	InstanceID string         `json:"instance_id"`
	Container  string         `json:"container"`
	Pipeline   string         `json:"pipeline,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Instance ID is set during deployment
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, pipeline, requestID, message string, fields map[string]any) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		Pipeline:   pipeline,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	// Write JSON log to stdout (the container runtime captures this)
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(pipeline, requestID, message string, fields map[string]any) {
	l.Log(INFO, pipeline, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(pipeline, requestID, message string, fields map[string]any) {
	l.Log(ERROR, pipeline, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(pipeline, requestID, message string, fields map[string]any) {
	l.Log(WARN, pipeline, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(pipeline, requestID, message string, fields map[string]any) {
	l.Log(DEBUG, pipeline, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field
func (l *Logger) InfoWithDuration(pipeline, requestID, message string, durationMS float64, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["duration_ms"] = durationMS
	l.Info(pipeline, requestID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(pipeline, requestID, message string, statusCode int, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(pipeline, requestID, message, fields)
}

// StepCompleted logs the outcome of one pipeline step in a uniform shape.
func (l *Logger) StepCompleted(pipeline, requestID, step, adapterName string, cost float64, durationMS float64, failed bool) {
	level := INFO
	message := "step completed"
	if failed {
		level = ERROR
		message = "step failed"
	}
	l.Log(level, pipeline, requestID, message, map[string]any{
		"step":           step,
		"adapter":        adapterName,
		"estimated_cost": cost,
		"duration_ms":    durationMS,
	})
}
