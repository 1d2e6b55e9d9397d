// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/safety"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/subprocess"
)

// Interactor is the user-facing capability surface tools may touch.
// The TUI provides the real implementation; tests inject a scripted
// one.
type Interactor interface {
	// AskYesNo poses a yes/no question and blocks for the answer.
	AskYesNo(ctx context.Context, prompt string) (bool, error)

	// AskInput poses a free-form question and blocks for the reply.
	AskInput(ctx context.Context, prompt string) (string, error)

	// DisplayBlock shows a titled block of text without blocking.
	DisplayBlock(title, body string)

	// ConfirmPatch shows a description plus unified diff and blocks
	// for approval.
	ConfirmPatch(ctx context.Context, description, diff string) (bool, error)
}

// Config holds the tunables for tool execution.
type Config struct {
	// DiagnosticTimeout bounds run_diagnostic_command.
	DiagnosticTimeout time.Duration

	// FixCommandTimeout bounds a confirmed propose_fix_by_command run.
	// Fix commands install packages and may legitimately take a while.
	FixCommandTimeout time.Duration

	// SearchCacheTTL is the age bound for cached searches.
	SearchCacheTTL time.Duration

	// ReadCacheWindow is how many steps a cached file read stays
	// servable without a fresh disk read.
	ReadCacheWindow int

	// SearchMaxDepth bounds the search walk.
	SearchMaxDepth int

	// MaxReadBytes bounds a single file read.
	MaxReadBytes int64
}

// DefaultConfig returns the standard tool tunables.
func DefaultConfig() Config {
	return Config{
		DiagnosticTimeout: 10 * time.Second,
		FixCommandTimeout: 120 * time.Second,
		SearchCacheTTL:    5 * time.Minute,
		ReadCacheWindow:   3,
		SearchMaxDepth:    3,
		MaxReadBytes:      10 * 1024 * 1024,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DiagnosticTimeout <= 0 {
		c.DiagnosticTimeout = def.DiagnosticTimeout
	}
	if c.FixCommandTimeout <= 0 {
		c.FixCommandTimeout = def.FixCommandTimeout
	}
	if c.SearchCacheTTL <= 0 {
		c.SearchCacheTTL = def.SearchCacheTTL
	}
	if c.ReadCacheWindow <= 0 {
		c.ReadCacheWindow = def.ReadCacheWindow
	}
	if c.SearchMaxDepth <= 0 {
		c.SearchMaxDepth = def.SearchMaxDepth
	}
	if c.MaxReadBytes <= 0 {
		c.MaxReadBytes = def.MaxReadBytes
	}
	return c
}

// Dispatcher executes catalog tools against a session.
type Dispatcher struct {
	runner subprocess.Runner
	gate   *safety.CommandGate
	ux     Interactor
	log    *logging.Logger
	cfg    Config
}

// NewDispatcher wires a dispatcher. A nil gate gets the default
// denylist; a nil logger gets the package default.
func NewDispatcher(runner subprocess.Runner, gate *safety.CommandGate, ux Interactor, log *logging.Logger, cfg Config) *Dispatcher {
	if gate == nil {
		gate = safety.NewCommandGate(nil)
	}
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		runner: runner,
		gate:   gate,
		ux:     ux,
		log:    log,
		cfg:    cfg.withDefaults(),
	}
}

// Execute runs one tool invocation. It is the single entry point: the
// orchestrator never calls tool logic directly. Decode failures and
// tool failures come back as error results, never as Go errors; a
// panicking tool is caught and reported the same way.
func (d *Dispatcher) Execute(ctx context.Context, session *agentcontext.AgentContext, tool ToolName, params map[string]any) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool panicked", "tool", string(tool), "panic", fmt.Sprint(r))
			res = errorResult(fmt.Sprintf("internal tool failure: %v", r))
		}
	}()

	if !tool.Valid() {
		return errorResult(fmt.Sprintf("unknown tool %q", tool))
	}
	if params == nil {
		params = map[string]any{}
	}

	d.log.Debug("dispatching tool", "tool", string(tool), "step", session.NextStepNo())

	switch tool {
	case ToolListDirectory:
		p, err := DecodeListDirectoryParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.listDirectory(ctx, session, p)
	case ToolReadFile:
		p, err := DecodeReadFileParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.readFile(ctx, session, p)
	case ToolRunDiagnostic:
		p, err := DecodeRunDiagnosticParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.runDiagnostic(ctx, session, p)
	case ToolSearchFiles:
		p, err := DecodeSearchParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.searchFiles(ctx, session, p)
	case ToolFileStructure:
		p, err := DecodeStructureParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.fileStructure(ctx, session, p)
	case ToolProposePatch:
		p, err := DecodePatchParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.proposePatch(ctx, session, p)
	case ToolProposeCommand:
		p, err := DecodeProposeCommandParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.proposeCommand(ctx, session, p)
	case ToolAskUser:
		p, err := DecodeAskUserParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.askUser(ctx, p)
	case ToolFinish:
		p, err := DecodeFinishParams(params)
		if err != nil {
			return errorResult(err.Error())
		}
		return d.finish(p)
	}
	return errorResult(fmt.Sprintf("unknown tool %q", tool))
}

// errorResult builds a failed result with no effects.
func errorResult(msg string) *Result {
	return &Result{Status: agentcontext.StatusError, Message: msg}
}

// successResult builds a succeeded result with the given payload.
func successResult(msg string, payload map[string]any) *Result {
	return &Result{Status: agentcontext.StatusSuccess, Message: msg, Payload: payload}
}
