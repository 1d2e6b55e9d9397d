// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the planner transport for the debugging agent.
//
// # Description
//
// The agent loop sends one assembled prompt per step and expects a
// single JSON decision back. This package defines the Client capability
// that providers implement, an Ollama client for local models, an
// OpenAI-compatible client for hosted ones, and a MockClient for tests.
// Implementations are injected at session start; the loop never knows
// which backend it is talking to.
//
// # Thread Safety
//
// All clients in this package are safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"time"
)

// Client is the planner transport capability.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends one prompt and returns the model's response.
	//
	// Inputs:
	//   - ctx: cancellation and per-request deadline
	//   - request: the completion request
	//
	// Outputs:
	//   - *Response: the model response
	//   - error: non-nil if the request failed after retries
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g. "ollama", "openai").
	Name() string

	// Model returns the default model in use.
	Model() string
}

// Request is one completion request.
type Request struct {
	// SystemPrompt frames the planner role and the tool contract.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the assembled session context for this step.
	Prompt string `json:"prompt"`

	// MaxTokens limits the response length. Zero uses the provider
	// default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Ignored when Deterministic is
	// set.
	Temperature float64 `json:"temperature,omitempty"`

	// Deterministic requests reproducible planning: greedy sampling
	// with temperature zero. Providers map this to their own knobs.
	Deterministic bool `json:"deterministic,omitempty"`

	// ForceJSON asks the provider for a JSON-only response where the
	// backend supports it. The response is still passed through
	// ExtractJSON before decoding, so providers without the knob work
	// too.
	ForceJSON bool `json:"force_json,omitempty"`

	// ModelOverride uses a different model for this request. Empty
	// means the client's default.
	ModelOverride string `json:"model_override,omitempty"`
}

// Response is one completion response.
type Response struct {
	// Content is the raw text the model produced.
	Content string `json:"content"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`

	// InputTokens is the prompt token count when the backend reports
	// it, otherwise an estimate.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the completion token count when the backend
	// reports it, otherwise an estimate.
	OutputTokens int `json:"output_tokens"`

	// Duration is how long the request took end to end.
	Duration time.Duration `json:"duration"`

	// Retries is how many failed attempts preceded this response.
	Retries int `json:"retries,omitempty"`
}

// TokensUsed returns the total token count, input plus output.
func (r *Response) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

// ErrBackendUnavailable indicates the provider could not be reached at
// all; callers surface setup guidance instead of retrying further.
var ErrBackendUnavailable = errors.New("llm backend unavailable")

// estimateTokens approximates a token count as ~4 characters per
// token. Used when the backend does not report counts.
func estimateTokens(content string) int {
	return len(content) / 4
}

// Permanent marks an error that retrying cannot heal, such as a
// missing model. retryTransient returns the wrapped error immediately.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// retryTransient runs fn up to attempts times, sleeping backoff
// between tries and doubling it each time. Context cancellation and
// Permanent errors stop the retries immediately.
func retryTransient(ctx context.Context, attempts int, backoff time.Duration, fn func() error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil {
			return attempt, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if ctx.Err() != nil {
			return attempt, err
		}
	}
	return attempts - 1, err
}
