// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// StatusAPI exposes a read-only HTTP surface over one pipeline: health,
// registered adapters, and the cost ledger, plus the Prometheus metrics
// endpoint. It never mutates the pipeline.
type StatusAPI struct {
	pipeline *Pipeline
}

// NewStatusAPI creates the status API for a pipeline.
func NewStatusAPI(p *Pipeline) *StatusAPI {
	return &StatusAPI{pipeline: p}
}

// Handler builds the routed, CORS-wrapped handler.
func (api *StatusAPI) Handler() http.Handler {
	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.HandleFunc("/health", api.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/costs", api.costsHandler).Methods("GET")
	r.HandleFunc("/api/v1/adapters", api.adaptersHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return c.Handler(r)
}

func (api *StatusAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"pipeline":  api.pipeline.Name(),
		"steps":     len(api.pipeline.Steps()),
		"adapters":  api.pipeline.Registry().Count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *StatusAPI) costsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.pipeline.CostAnalysis())
}

// adapterStatus is the wire form of one registered adapter.
type adapterStatus struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	RequestCount int64    `json:"request_count"`
	Healthy      bool     `json:"healthy"`
}

func (api *StatusAPI) adaptersHandler(w http.ResponseWriter, r *http.Request) {
	adapters := api.pipeline.Registry().Adapters()
	out := make([]adapterStatus, 0, len(adapters))
	for _, a := range adapters {
		caps := a.Capabilities()
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		out = append(out, adapterStatus{
			Name:         a.Name(),
			Capabilities: names,
			RequestCount: a.RequestCount(),
			Healthy:      a.HealthCheck(r.Context()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapters": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
