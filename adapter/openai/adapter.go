// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai implements a UMF adapter for OpenAI-compatible chat
// completion APIs. It handles task-specific prompt shaping, context
// truncation, complexity-based model selection with a cheaper fallback,
// token-based cost accounting, and an optional bounded response cache.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"umf/platform/adapter"
	"umf/platform/umf"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the primary model used for complex requests.
	DefaultModel = "gpt-4"

	// DefaultFallbackModel is the cheaper model used for simple requests
	// and as a last resort after retries are exhausted.
	DefaultFallbackModel = "gpt-3.5-turbo"

	// DefaultTimeout is the default HTTP timeout for a completion call.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default completion token limit.
	DefaultMaxTokens = 1000

	// maxTokensCeiling caps any requested completion token limit.
	maxTokensCeiling = 4000

	// defaultMaxContextTokens bounds how much conversation history is
	// forwarded to the backend.
	defaultMaxContextTokens = 2000
)

// complexityThreshold is the score above which the primary model is used.
// Score = payload length + 100 per context entry.
const complexityThreshold = 1000

// priorityThreshold routes high-priority requests to the primary model
// regardless of complexity.
const priorityThreshold = 5

// costRate is the per-token USD cost of a model.
type costRate struct {
	input  float64
	output float64
}

// costPerToken maps known models to their per-token rates. Unknown models
// fall back to the primary rate.
var costPerToken = map[string]costRate{
	"gpt-4":         {input: 0.00003, output: 0.00006},
	"gpt-3.5-turbo": {input: 0.0000015, output: 0.000002},
}

// HTTPClient abstracts the HTTP transport so tests can stub it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the adapter.
type Config struct {
	// APIKey authenticates against the backend. Validated at construction.
	APIKey string

	// Name identifies this adapter instance. Defaults to "openai".
	Name string

	// BaseURL overrides the API endpoint (e.g. for OpenAI-compatible
	// self-hosted gateways).
	BaseURL string

	// Model is the primary model. Defaults to gpt-4.
	Model string

	// FallbackModel is the cheaper model. Defaults to gpt-3.5-turbo.
	FallbackModel string

	// Timeout bounds a single HTTP call when the request carries none.
	Timeout time.Duration

	// EnableCache turns on the FIFO response cache.
	EnableCache bool

	// CacheSize bounds the cache. Defaults to 1000 when caching is on.
	CacheSize int

	// RequestsPerMinute attaches an in-memory rate limiter when positive.
	RequestsPerMinute int

	// Limiter overrides the in-memory limiter, e.g. with a Redis-backed
	// one shared across instances.
	Limiter adapter.RateLimiter

	// HTTPClient overrides the transport. Defaults to a *http.Client with
	// the configured timeout.
	HTTPClient HTTPClient
}

// Adapter is a UMF adapter for OpenAI-compatible backends.
type Adapter struct {
	*adapter.Runtime

	baseURL       string
	model         string
	fallbackModel string
	timeout       time.Duration
	client        HTTPClient
	cache         *adapter.Cache

	// retryUnit is one backoff unit. Tests shrink it.
	retryUnit time.Duration
}

// New creates the adapter. An invalid API key format is a construction-time
// error; it never reaches Execute.
func New(cfg Config) (*Adapter, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	opts := []adapter.RuntimeOption{
		adapter.WithCircuitBreaker(adapter.NewCircuitBreaker()),
	}
	switch {
	case cfg.Limiter != nil:
		opts = append(opts, adapter.WithRateLimiter(cfg.Limiter))
	case cfg.RequestsPerMinute > 0:
		opts = append(opts, adapter.WithRateLimiter(adapter.NewSlidingWindowLimiter(cfg.RequestsPerMinute)))
	}

	rt, err := adapter.NewRuntime(name, cfg.APIKey, opts...)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		Runtime:       rt,
		baseURL:       cfg.BaseURL,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		timeout:       cfg.Timeout,
		client:        cfg.HTTPClient,
	}

	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.fallbackModel == "" {
		a.fallbackModel = DefaultFallbackModel
	}
	if a.timeout == 0 {
		a.timeout = DefaultTimeout
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: a.timeout}
	}
	if cfg.EnableCache {
		size := cfg.CacheSize
		if size == 0 {
			size = 1000
		}
		a.cache = adapter.NewCache(size)
	}

	return a, nil
}

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() []umf.TaskType {
	return []umf.TaskType{
		umf.TaskCodeGeneration,
		umf.TaskTextGeneration,
		umf.TaskAnalysis,
	}
}

// chatMessage is one entry of an OpenAI chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the backend-specific request shape.
type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
}

// chatResponse is the backend-specific response shape.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// systemPrompts shape the backend's behavior per task type.
var systemPrompts = map[umf.TaskType]string{
	umf.TaskCodeGeneration: "You are a code generation assistant. Generate production-ready, secure code with error handling and documentation.",
	umf.TaskTextGeneration: "You are a content generation assistant. Create professional, accurate content for the target audience.",
	umf.TaskAnalysis:       "You are a data analysis assistant. Provide comprehensive, actionable insights supported by evidence.",
}

// defaultSystemPrompt is used for task types without a dedicated prompt.
const defaultSystemPrompt = "You are a helpful AI assistant."

// TranslateRequest converts a UMF envelope into the backend request. It is
// a pure transform: it validates the context entries, applies the task's
// system prompt, truncates history to the token budget, clamps the token
// limit, and picks a model based on complexity and priority.
func (a *Adapter) TranslateRequest(req *umf.RequestEnvelope) (*chatRequest, error) {
	if err := req.ValidateContext(); err != nil {
		vErr := umf.NewAdapterError(a.Name(), umf.ErrCodeInvalidRequest, err.Error())
		vErr.Cause = err
		return nil, vErr
	}

	system, ok := systemPrompts[req.TaskType]
	if !ok {
		system = defaultSystemPrompt
	}
	messages := []chatMessage{{Role: "system", Content: system}}

	// Walk the history newest-first and keep what fits the token budget,
	// preserving chronological order in the outgoing request.
	budget := req.MetaInt("max_context_tokens", defaultMaxContextTokens)
	var kept []chatMessage
	used := 0.0
	for i := len(req.Context) - 1; i >= 0; i-- {
		entry := req.Context[i]
		estimated := estimateTokens(entry.Content)
		if used+estimated > float64(budget) {
			break
		}
		kept = append([]chatMessage{{Role: entry.Role, Content: entry.Content}}, kept...)
		used += estimated
	}
	messages = append(messages, kept...)

	messages = append(messages, chatMessage{Role: "user", Content: fmt.Sprint(req.Payload)})

	maxTokens := req.MetaInt("max_tokens", DefaultMaxTokens)
	if maxTokens > maxTokensCeiling {
		maxTokens = maxTokensCeiling
	}

	return &chatRequest{
		Model:            a.selectModel(req),
		Messages:         messages,
		MaxTokens:        maxTokens,
		Temperature:      req.MetaFloat("temperature", 0.7),
		TopP:             req.MetaFloat("top_p", 1.0),
		FrequencyPenalty: req.MetaFloat("frequency_penalty", 0),
		PresencePenalty:  req.MetaFloat("presence_penalty", 0),
	}, nil
}

// estimateTokens is a rough word-based token estimate.
func estimateTokens(content string) float64 {
	words := 0
	inWord := false
	for _, r := range content {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return float64(words) * 1.3
}

// selectModel downgrades simple, low-priority requests to the cheaper
// fallback model. Explicit overrides and high complexity keep the primary.
func (a *Adapter) selectModel(req *umf.RequestEnvelope) string {
	complexity := len(fmt.Sprint(req.Payload)) + len(req.Context)*100
	if complexity > complexityThreshold || req.Priority > priorityThreshold {
		return a.model
	}
	if req.MetaBool("force_primary_model", false) {
		return a.model
	}
	return a.fallbackModel
}

// TranslateResponse converts a backend response into a UMF envelope,
// computing token cost from the per-model rate table and a simple quality
// heuristic.
func (a *Adapter) TranslateResponse(raw *chatResponse, req *umf.RequestEnvelope) (*umf.ResponseEnvelope, error) {
	if len(raw.Choices) == 0 {
		return nil, umf.NewAdapterError(a.Name(), umf.ErrCodeInvalidRequest, "backend returned no choices")
	}

	content := raw.Choices[0].Message.Content

	rate, ok := costPerToken[raw.Model]
	if !ok {
		rate = costPerToken[a.model]
	}
	inputCost := float64(raw.Usage.PromptTokens) * rate.input
	outputCost := float64(raw.Usage.CompletionTokens) * rate.output

	quality := qualityScore(content, req)

	return &umf.ResponseEnvelope{
		TaskType:  req.TaskType,
		Result:    content,
		RequestID: req.RequestID,
		Cost: umf.CostInfo{
			EstimatedCost: inputCost + outputCost,
			InputCost:     inputCost,
			OutputCost:    outputCost,
		},
		Metadata: map[string]any{
			"tokens_used":       raw.Usage.TotalTokens,
			"prompt_tokens":     raw.Usage.PromptTokens,
			"completion_tokens": raw.Usage.CompletionTokens,
			"finish_reason":     raw.Choices[0].FinishReason,
		},
		ModelInfo: map[string]any{
			"provider": "openai",
			"model":    raw.Model,
		},
		QualityMetrics: map[string]float64{
			"confidence_score": quality,
			"response_length":  float64(len(content)),
		},
	}, nil
}

// qualityScore is a coarse confidence heuristic over the generated content.
func qualityScore(content string, req *umf.RequestEnvelope) float64 {
	score := 0.8
	if len(content) > 100 {
		score += 0.1
	}
	if req.TaskType == umf.TaskCodeGeneration {
		if bytes.Contains([]byte(content), []byte("func ")) || bytes.Contains([]byte(content), []byte("def ")) {
			score += 0.1
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Execute implements adapter.Adapter. Transient backend failures (429,
// 5xx, timeouts) are retried with exponential backoff; when retries are
// exhausted on the primary model the call is attempted once more on the
// fallback model before failing.
func (a *Adapter) Execute(ctx context.Context, req *umf.RequestEnvelope) *umf.ResponseEnvelope {
	return a.Guard(ctx, req, func(ctx context.Context) (*umf.ResponseEnvelope, error) {
		var cacheKey string
		if a.cache != nil {
			cacheKey = adapter.CacheKey(req)
			if cached, ok := a.cache.Get(cacheKey); ok {
				a.Logger().Printf("cache hit for request %s", req.RequestID)
				return cached, nil
			}
		}

		apiReq, err := a.TranslateRequest(req)
		if err != nil {
			return nil, err
		}

		raw, err := adapter.RetryWithBackoff(ctx, adapter.RetryConfig{Policy: req.Retry, Unit: a.retryUnit},
			func(ctx context.Context) (*chatResponse, error) {
				return a.complete(ctx, apiReq)
			})
		if err != nil && umf.IsRetryable(err) && apiReq.Model == a.model {
			// Last resort: one attempt on the cheaper model.
			a.Logger().Printf("retries exhausted on %s, falling back to %s", a.model, a.fallbackModel)
			apiReq.Model = a.fallbackModel
			raw, err = a.complete(ctx, apiReq)
		}
		if err != nil {
			return nil, err
		}

		resp, err := a.TranslateResponse(raw, req)
		if err != nil {
			return nil, err
		}

		if a.cache != nil {
			a.cache.Put(cacheKey, resp)
		}
		return resp, nil
	})
}

// complete performs one HTTP round trip against the chat completions
// endpoint and classifies failures as retryable or terminal.
func (a *Adapter) complete(ctx context.Context, apiReq *chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "umf-platform/1.0")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			tErr := umf.NewAdapterError(a.Name(), umf.ErrCodeTimeout, "request timed out")
			tErr.Cause = err
			return nil, tErr
		}
		uErr := umf.NewAdapterError(a.Name(), umf.ErrCodeUnavailable, err.Error())
		uErr.Cause = err
		return nil, uErr
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusOK:
		var raw chatResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if raw.Model == "" {
			raw.Model = apiReq.Model
		}
		return &raw, nil

	case httpResp.StatusCode == http.StatusTooManyRequests:
		rlErr := umf.NewAdapterError(a.Name(), umf.ErrCodeRateLimit, "backend rate limited the request")
		rlErr.StatusCode = httpResp.StatusCode
		return nil, rlErr

	case httpResp.StatusCode >= 500:
		sErr := umf.NewAdapterError(a.Name(), umf.ErrCodeServerError, "backend server error")
		sErr.StatusCode = httpResp.StatusCode
		return nil, sErr

	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		aErr := umf.NewAdapterError(a.Name(), umf.ErrCodeAuth, "backend rejected the credentials")
		aErr.StatusCode = httpResp.StatusCode
		return nil, aErr

	default:
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		bErr := umf.NewAdapterError(a.Name(), umf.ErrCodeInvalidRequest,
			fmt.Sprintf("backend error %d: %s", httpResp.StatusCode, detail))
		bErr.StatusCode = httpResp.StatusCode
		return nil, bErr
	}
}

// HealthCheck pings the models endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey())

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}

// Verify interface compliance at compile time.
var _ adapter.Adapter = (*Adapter)(nil)
