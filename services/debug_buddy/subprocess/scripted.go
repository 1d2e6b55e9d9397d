// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package subprocess

import (
	"context"
	"sync"
	"time"
)

// ScriptedRunner replays canned results keyed by command string. Tests
// inject it wherever a Runner is consumed so no process is spawned.
type ScriptedRunner struct {
	mu sync.Mutex

	// Responses maps exact command strings to results.
	Responses map[string]*Result

	// Fallback is returned for commands not in Responses. When nil,
	// an unknown command yields exit 127 with a shell-style stderr.
	Fallback *Result

	// Err, when set, is returned alongside the result for every call.
	Err error

	// Calls records every command in invocation order.
	Calls []string
}

// NewScriptedRunner creates an empty scripted runner.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{Responses: make(map[string]*Result)}
}

// Script registers a canned result for a command.
func (s *ScriptedRunner) Script(command string, result *Result) *ScriptedRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Responses == nil {
		s.Responses = make(map[string]*Result)
	}
	s.Responses[command] = result
	return s
}

// Run implements Runner.
func (s *ScriptedRunner) Run(_ context.Context, command string, _ time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, command)

	if r, ok := s.Responses[command]; ok {
		cp := *r
		cp.Command = command
		return &cp, s.Err
	}
	if s.Fallback != nil {
		cp := *s.Fallback
		cp.Command = command
		return &cp, s.Err
	}
	return &Result{
		Command:  command,
		Stderr:   "sh: " + command + ": command not found",
		ExitCode: 127,
	}, s.Err
}

// CallCount returns how many commands have been run.
func (s *ScriptedRunner) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
