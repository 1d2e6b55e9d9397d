// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

var tracer = otel.Tracer("debugbuddy.llm.ollama")

// Defaults for the Ollama client. The request timeout and retry
// schedule match what a local planning call needs: model loads can
// take tens of seconds on first use.
const (
	DefaultOllamaTimeout = 120 * time.Second
	DefaultOllamaRetries = 3
	DefaultOllamaBackoff = 2 * time.Second
	defaultHealthTimeout = 2 * time.Second
	defaultMaxTokens     = 8192
)

// ErrModelNotFound indicates the requested model is not pulled.
var ErrModelNotFound = errors.New("model not found")

// DefaultEmbedModel is the embedding model used when none is
// configured.
const DefaultEmbedModel = "nomic-embed-text"

// OllamaOptions configure an OllamaClient.
type OllamaOptions struct {
	// BaseURL of the Ollama server, e.g. http://localhost:11434.
	BaseURL string

	// Model is the default model name.
	Model string

	// EmbedModel is the model used for Embed calls. Empty uses
	// DefaultEmbedModel.
	EmbedModel string

	// Timeout bounds one completion request.
	Timeout time.Duration

	// MaxRetries for transient failures (connection refused, 5xx).
	MaxRetries int

	// RetryBackoff is the initial delay between retries; it doubles
	// per retry.
	RetryBackoff time.Duration

	// NumThread pins the CPU thread count for generation. Zero lets
	// the server decide.
	NumThread int

	// NumBatch sets the prompt batch size. Zero lets the server
	// decide.
	NumBatch int

	// Logger for request lifecycle events. Nil uses the default.
	Logger *logging.Logger
}

// OllamaClient talks to a local Ollama server over its native HTTP
// API using streamed generation.
//
// # Thread Safety
//
// OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient   *http.Client
	healthClient *http.Client
	baseURL      string
	model        string
	embedModel   string
	maxRetries   int
	backoff      time.Duration
	numThread    int
	numBatch     int
	log          *logging.Logger
}

// NewOllamaClient creates a client for the given server.
//
// Inputs:
//   - opts: connection options; BaseURL is required
//
// Outputs:
//   - *OllamaClient: the configured client
//   - error: non-nil when BaseURL is missing
func NewOllamaClient(opts OllamaOptions) (*OllamaClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL not set")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOllamaTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOllamaRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOllamaBackoff
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	if opts.Model == "" {
		log.Warn("no planning model configured, defaulting", "model", "qwen2.5-coder:14b")
		opts.Model = "qwen2.5-coder:14b"
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = DefaultEmbedModel
	}

	return &OllamaClient{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		healthClient: &http.Client{Timeout: defaultHealthTimeout},
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		model:        opts.Model,
		embedModel:   opts.EmbedModel,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.RetryBackoff,
		numThread:    opts.NumThread,
		numBatch:     opts.NumBatch,
		log:          log,
	}, nil
}

// Ollama native API shapes.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	EvalDuration    int64  `json:"eval_duration"`
	LoadDuration    int64  `json:"load_duration"`
}

// Complete implements Client.
//
// The request streams so a dying generation surfaces partial output in
// logs instead of a silent timeout. Transient failures are retried
// with exponential backoff; a missing model is permanent and returns
// ErrModelNotFound with pull guidance.
func (o *OllamaClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Complete")
	defer span.End()

	model := o.model
	if request.ModelOverride != "" {
		model = request.ModelOverride
	}
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.prompt_chars", len(request.Prompt)),
	)

	payload := ollamaGenerateRequest{
		Model:   model,
		Prompt:  request.Prompt,
		System:  request.SystemPrompt,
		Stream:  true,
		Options: o.buildOptions(request),
	}
	if request.ForceJSON {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	start := time.Now()
	var resp *Response
	retries, err := retryTransient(ctx, o.maxRetries, o.backoff, func() error {
		var attemptErr error
		resp, attemptErr = o.generateOnce(ctx, model, body)
		if attemptErr != nil && !isTransient(attemptErr) {
			return Permanent(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.Error("ollama generation failed", "model", model, "retries", retries, "error", err)
		return nil, err
	}

	resp.Duration = time.Since(start)
	resp.Retries = retries
	o.log.Debug("ollama generation complete",
		"model", model,
		"output_tokens", resp.OutputTokens,
		"duration_ms", resp.Duration.Milliseconds(),
		"retries", retries)
	return resp, nil
}

// isTransient reports whether an attempt error is worth retrying.
// Connection failures and server errors are; missing models and bad
// requests are not.
func isTransient(err error) bool {
	if errors.Is(err, ErrModelNotFound) {
		return false
	}
	var httpErr *ollamaHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.status >= 500
	}
	return true
}

// ollamaHTTPError carries a non-200 status for retry classification.
type ollamaHTTPError struct {
	status int
	body   string
}

func (e *ollamaHTTPError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}

// generateOnce performs a single streamed generation attempt.
func (o *OllamaClient) generateOnce(ctx context.Context, model string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		if httpResp.StatusCode == http.StatusNotFound && bytes.Contains(raw, []byte("not found")) {
			return nil, fmt.Errorf("%w: %q is not pulled. Run: ollama pull %s", ErrModelNotFound, model, model)
		}
		return nil, &ollamaHTTPError{status: httpResp.StatusCode, body: string(raw)}
	}

	// Accumulate the NDJSON stream until the done chunk, which carries
	// the token counts.
	var sb strings.Builder
	var final ollamaGenerateChunk
	dec := json.NewDecoder(httpResp.Body)
	for {
		var chunk ollamaGenerateChunk
		if decodeErr := dec.Decode(&chunk); decodeErr != nil {
			if decodeErr == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding generate stream: %w", decodeErr)
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			final = chunk
			break
		}
	}

	content := sb.String()
	resp := &Response{
		Content:      content,
		Model:        model,
		InputTokens:  final.PromptEvalCount,
		OutputTokens: final.EvalCount,
	}
	if resp.OutputTokens == 0 {
		resp.OutputTokens = estimateTokens(content)
	}
	return resp, nil
}

// buildOptions maps request knobs onto Ollama generation options.
// Deterministic planning uses greedy sampling so the same context
// yields the same decision.
func (o *OllamaClient) buildOptions(request *Request) map[string]any {
	options := make(map[string]any)

	if request.Deterministic {
		options["temperature"] = 0.0
		options["top_k"] = 1
		options["top_p"] = 0.1
	} else {
		temp := request.Temperature
		if temp <= 0 {
			temp = 0.2
		}
		options["temperature"] = temp
		options["top_k"] = 20
		options["top_p"] = 0.9
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	options["num_predict"] = maxTokens

	if o.numThread > 0 {
		options["num_thread"] = o.numThread
	}
	if o.numBatch > 0 {
		options["num_batch"] = o.numBatch
	}
	return options
}

// Ollama embeddings API shapes.
type ollamaEmbeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for one text using the embedding
// model. A single attempt is made: callers treat embeddings as
// best-effort and degrade to lexical search on failure.
func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingsRequest{Model: o.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embeddings request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		if httpResp.StatusCode == http.StatusNotFound && bytes.Contains(raw, []byte("not found")) {
			return nil, fmt.Errorf("%w: %q is not pulled. Run: ollama pull %s", ErrModelNotFound, o.embedModel, o.embedModel)
		}
		return nil, &ollamaHTTPError{status: httpResp.StatusCode, body: string(raw)}
	}

	var decoded ollamaEmbeddingsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for model %q", o.embedModel)
	}
	return decoded.Embedding, nil
}

// Name implements Client.
func (o *OllamaClient) Name() string { return "ollama" }

// Model implements Client.
func (o *OllamaClient) Model() string { return o.model }

// EmbedModel reports the configured embedding model name.
func (o *OllamaClient) EmbedModel() string { return o.embedModel }

// Health checks that the server answers at all. It uses a short
// dedicated timeout so session startup fails fast when Ollama is not
// running.
func (o *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := o.healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels returns the models the server has pulled.
func (o *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating tags request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ollamaHTTPError{status: resp.StatusCode, body: string(raw)}
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding tags response: %w", err)
	}
	return tags.Models, nil
}

// Pull downloads a model, reporting status lines through progress.
// The progress callback may be nil.
func (o *OllamaClient) Pull(ctx context.Context, name string, progress func(status string)) error {
	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return fmt.Errorf("marshaling pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls run long; rely on ctx instead of the request timeout.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ollamaHTTPError{status: resp.StatusCode, body: string(raw)}
	}

	dec := json.NewDecoder(resp.Body)
	lastStatus := ""
	for {
		var chunk struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if decodeErr := dec.Decode(&chunk); decodeErr != nil {
			if decodeErr == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding pull stream: %w", decodeErr)
		}
		if chunk.Error != "" {
			return fmt.Errorf("pulling %s: %s", name, chunk.Error)
		}
		if progress != nil && chunk.Status != "" && chunk.Status != lastStatus {
			progress(chunk.Status)
			lastStatus = chunk.Status
		}
		if chunk.Status == "success" {
			return nil
		}
	}
}

var _ Client = (*OllamaClient)(nil)
