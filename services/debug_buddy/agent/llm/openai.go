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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

// OpenAIOptions configure an OpenAICompatClient.
type OpenAIOptions struct {
	// BaseURL of an OpenAI-compatible server. Empty uses the official
	// API endpoint.
	BaseURL string

	// Model is the default model name.
	Model string

	// APIKey authenticates requests. Sealed into locked memory at
	// construction; the caller's copy is wiped.
	APIKey []byte

	// Timeout bounds one completion request.
	Timeout time.Duration

	// MaxRetries for transient failures.
	MaxRetries int

	// RetryBackoff is the initial delay between retries; it doubles
	// per retry.
	RetryBackoff time.Duration

	// Logger for request lifecycle events. Nil uses the default.
	Logger *logging.Logger
}

// OpenAICompatClient talks to the OpenAI API or any server speaking
// its chat-completions protocol (llama.cpp server, vLLM, LM Studio).
//
// # Thread Safety
//
// OpenAICompatClient is safe for concurrent use.
type OpenAICompatClient struct {
	key        *memguard.Enclave
	httpClient *http.Client
	baseURL    string
	model      string
	maxRetries int
	backoff    time.Duration
	log        *logging.Logger
}

// NewOpenAICompatClient creates a client. The API key is sealed into a
// memguard enclave between requests and only opened while a request
// is in flight; opts.APIKey is wiped by the seal.
func NewOpenAICompatClient(opts OpenAIOptions) (*OpenAICompatClient, error) {
	if len(opts.APIKey) == 0 {
		return nil, fmt.Errorf("API key not set")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model not set")
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

	return &OpenAICompatClient{
		key:        memguard.NewEnclave(opts.APIKey),
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		log:        log,
	}, nil
}

// Complete implements Client.
func (c *OpenAICompatClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	model := c.model
	if request.ModelOverride != "" {
		model = request.ModelOverride
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: request.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: request.Prompt},
		},
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	if request.Deterministic {
		// The request struct drops a literal zero (omitempty), which
		// would fall back to the server default of 1.0.
		req.Temperature = 1e-8
	} else if request.Temperature > 0 {
		req.Temperature = float32(request.Temperature)
	}
	if request.ForceJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	var resp *Response
	retries, err := retryTransient(ctx, c.maxRetries, c.backoff, func() error {
		var attemptErr error
		resp, attemptErr = c.completeOnce(ctx, req)
		if attemptErr != nil && !isTransientOpenAI(attemptErr) {
			return Permanent(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		c.log.Error("openai completion failed", "model", model, "retries", retries, "error", err)
		return nil, err
	}

	resp.Duration = time.Since(start)
	resp.Retries = retries
	c.log.Debug("openai completion complete",
		"model", model,
		"output_tokens", resp.OutputTokens,
		"duration_ms", resp.Duration.Milliseconds(),
		"retries", retries)
	return resp, nil
}

// completeOnce performs a single attempt with the key held in memory
// only for the duration of the call.
func (c *OpenAICompatClient) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (*Response, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening API key enclave: %w", err)
	}
	defer buf.Destroy()

	cfg := openai.DefaultConfig(buf.String())
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	apiResp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	content := apiResp.Choices[0].Message.Content
	resp := &Response{
		Content:      content,
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}
	if resp.OutputTokens == 0 {
		resp.OutputTokens = estimateTokens(content)
	}
	return resp, nil
}

// isTransientOpenAI retries transport failures and server errors;
// authentication and bad-request failures are permanent.
func isTransientOpenAI(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}

// Name implements Client.
func (c *OpenAICompatClient) Name() string { return "openai" }

// Model implements Client.
func (c *OpenAICompatClient) Model() string { return c.model }

var _ Client = (*OpenAICompatClient)(nil)
