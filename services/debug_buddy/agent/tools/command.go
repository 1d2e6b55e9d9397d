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
	"errors"
	"fmt"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/subprocess"
)

// runDiagnostic executes a read-only evidence-gathering command.
//
// A non-zero exit is still a successful invocation: re-running the
// failing program to observe its error is the point of this tool. The
// result is an error only when the command was blocked, timed out, or
// could not be spawned.
func (d *Dispatcher) runDiagnostic(ctx context.Context, session *agentcontext.AgentContext, p RunDiagnosticParams) *Result {
	if !session.Constraints.AllowCommandExecution {
		return errorResult("command execution is disabled for this session")
	}
	if err := d.gate.CheckCommand(p.CommandString); err != nil {
		d.log.Warn("diagnostic command blocked", "command", p.CommandString)
		return errorResult(err.Error())
	}

	run, err := d.runner.Run(ctx, p.CommandString, d.cfg.DiagnosticTimeout)
	switch {
	case errors.Is(err, subprocess.ErrTimeout):
		res := errorResult(fmt.Sprintf("command timed out after %s: %s", d.cfg.DiagnosticTimeout, p.CommandString))
		res.Payload = commandPayload(run)
		res.Effects.CommandOutput = run.Combined()
		res.Effects.HasCommandOutput = true
		return res
	case err != nil:
		return errorResult(fmt.Sprintf("running %q: %v", p.CommandString, err))
	}

	msg := fmt.Sprintf("command exited %d", run.ExitCode)
	if run.ExitCode == 0 {
		msg = "command succeeded"
	}
	res := successResult(msg, commandPayload(run))
	res.Effects.CommandOutput = run.Combined()
	res.Effects.HasCommandOutput = true
	return res
}

// proposeCommand shows a fix command to the user and runs it only on
// an explicit yes. The denylist does not apply here: the user sees
// the exact command before anything executes.
func (d *Dispatcher) proposeCommand(ctx context.Context, session *agentcontext.AgentContext, p ProposeCommandParams) *Result {
	if !session.Constraints.AllowCommandExecution {
		return errorResult("command execution is disabled for this session")
	}

	body := fmt.Sprintf("$ %s\n\n%s", p.CommandToPropose, p.CommandDescription)
	d.ux.DisplayBlock("Proposed fix command", body)

	confirmed, err := d.ux.AskYesNo(ctx, "Run this command?")
	if err != nil {
		return errorResult(fmt.Sprintf("confirmation failed: %v", err))
	}
	if !confirmed {
		d.log.Info("user declined fix command", "command", p.CommandToPropose)
		return successResult("user declined the proposed command", map[string]any{
			"command":           p.CommandToPropose,
			"user_confirmation": false,
			"executed":          false,
		})
	}

	run, err := d.runner.Run(ctx, p.CommandToPropose, d.cfg.FixCommandTimeout)
	switch {
	case errors.Is(err, subprocess.ErrTimeout):
		res := errorResult(fmt.Sprintf("fix command timed out after %s", d.cfg.FixCommandTimeout))
		res.Payload = commandPayload(run)
		res.Payload["user_confirmation"] = true
		res.Payload["executed"] = true
		res.Effects.CommandOutput = run.Combined()
		res.Effects.HasCommandOutput = true
		return res
	case err != nil:
		return errorResult(fmt.Sprintf("running %q: %v", p.CommandToPropose, err))
	}

	d.log.Info("fix command executed", "command", p.CommandToPropose, "exit_code", run.ExitCode)

	payload := commandPayload(run)
	payload["user_confirmation"] = true
	payload["executed"] = true

	msg := fmt.Sprintf("fix command exited %d", run.ExitCode)
	if run.ExitCode == 0 {
		msg = "fix command succeeded"
	}
	res := successResult(msg, payload)
	res.Effects.CommandOutput = run.Combined()
	res.Effects.HasCommandOutput = true
	return res
}

// commandPayload shapes a subprocess result for the planner.
func commandPayload(run *subprocess.Result) map[string]any {
	if run == nil {
		return map[string]any{}
	}
	return map[string]any{
		"command":     run.Command,
		"stdout":      run.Stdout,
		"stderr":      run.Stderr,
		"exit_code":   run.ExitCode,
		"timed_out":   run.TimedOut,
		"truncated":   run.Truncated,
		"duration_ms": run.Duration.Milliseconds(),
	}
}
