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
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient is a scripted planner for tests.
//
// Decisions are consumed from a queue in order. When the queue runs
// dry, Complete consults an optional hook and finally falls back to a
// generic response, so step-cap tests do not need to queue twenty
// decisions.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu       sync.Mutex
	queue    []*Response
	requests []*Request
	failWith error
	hook     func(*Request) (*Response, error)
}

// NewMockClient creates an empty scripted planner.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueDecision queues one well-formed planner decision following the
// JSON contract the session loop validates.
func (c *MockClient) QueueDecision(thought, tool string, params map[string]any) *MockClient {
	if params == nil {
		params = map[string]any{}
	}
	body, _ := json.Marshal(map[string]any{
		"thought":         thought,
		"tool_to_use":     tool,
		"tool_parameters": params,
	})
	return c.QueueRawContent(string(body))
}

// QueueRawContent queues a response with verbatim content, useful for
// exercising malformed planner output.
func (c *MockClient) QueueRawContent(content string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, &Response{
		Content:      content,
		Model:        "mock-model",
		InputTokens:  50,
		OutputTokens: estimateTokens(content),
	})
	return c
}

// FailWith makes every subsequent Complete call return err.
func (c *MockClient) FailWith(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
	return c
}

// Hook installs a dynamic responder consulted once the queue is empty.
func (c *MockClient) Hook(fn func(*Request) (*Response, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
	return c
}

// Complete implements the Client interface.
func (c *MockClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, request)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.failWith != nil {
		return nil, c.failWith
	}
	if len(c.queue) > 0 {
		resp := c.queue[0]
		c.queue = c.queue[1:]
		return resp, nil
	}
	if c.hook != nil {
		return c.hook(request)
	}
	return &Response{
		Content:      "Mock response",
		Model:        "mock-model",
		InputTokens:  50,
		OutputTokens: 50,
	}, nil
}

// Name implements the Client interface.
func (c *MockClient) Name() string { return "mock" }

// Model implements the Client interface.
func (c *MockClient) Model() string { return "mock-model" }

// CallCount returns how many Complete calls were made.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// LastRequest returns the most recent request, or nil before the first
// call. Tests use it to assert what the loop actually sent.
func (c *MockClient) LastRequest() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

// Verify returns an error if queued decisions were left unconsumed,
// which usually means the session terminated earlier than the test
// script expected.
func (c *MockClient) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		return fmt.Errorf("mock: %d queued responses not consumed", len(c.queue))
	}
	return nil
}

var _ Client = (*MockClient)(nil)
