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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/subprocess"
)

func TestRunDiagnostic(t *testing.T) {
	t.Run("successful command", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner().Script("python --version", &subprocess.Result{
			Stdout:   "Python 3.11.4\n",
			ExitCode: 0,
		})
		d := newTestDispatcher(runner, nil)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolRunDiagnostic, map[string]any{
			"command_string": "python --version",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "command succeeded", res.Message)
		assert.Equal(t, "Python 3.11.4\n", res.Payload["stdout"])
		assert.True(t, res.Effects.HasCommandOutput)
		assert.Contains(t, res.Effects.CommandOutput, "Python 3.11.4")
	})

	t.Run("non-zero exit is still a successful invocation", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner().Script("python etl.py", &subprocess.Result{
			Stderr:   "KeyError: 'CustomerID'",
			ExitCode: 1,
		})
		d := newTestDispatcher(runner, nil)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolRunDiagnostic, map[string]any{
			"command_string": "python etl.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "command exited 1", res.Message)
		assert.Equal(t, 1, res.Payload["exit_code"])
		assert.True(t, res.Effects.HasCommandOutput)
		assert.Contains(t, res.Effects.CommandOutput, "KeyError")
	})

	t.Run("denylisted command blocked before spawn", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner()
		d := newTestDispatcher(runner, nil)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolRunDiagnostic, map[string]any{
			"command_string": "rm -rf build",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "command blocked by safety rules")
		assert.Zero(t, runner.CallCount(), "blocked commands never reach the runner")
		assert.False(t, res.Effects.HasCommandOutput)
	})

	t.Run("timeout keeps partial output", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner().Script("python etl.py", &subprocess.Result{
			Stdout:   "processing batch 1\n",
			ExitCode: -1,
			TimedOut: true,
		})
		runner.Err = subprocess.ErrTimeout
		d := newTestDispatcher(runner, nil)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolRunDiagnostic, map[string]any{
			"command_string": "python etl.py",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "timed out")
		assert.Equal(t, true, res.Payload["timed_out"])
		assert.True(t, res.Effects.HasCommandOutput, "partial output still feeds the error history")
		assert.Contains(t, res.Effects.CommandOutput, "processing batch 1")
	})

	t.Run("execution disabled by constraints", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner()
		d := newTestDispatcher(runner, nil)
		session := newTestSession(t)
		session.Constraints.AllowCommandExecution = false

		res := d.Execute(context.Background(), session, ToolRunDiagnostic, map[string]any{
			"command_string": "python etl.py",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "command execution is disabled")
		assert.Zero(t, runner.CallCount())
	})
}

func TestProposeCommand(t *testing.T) {
	t.Run("declined command never runs", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner()
		ux := NewScriptedInteractor() // declines by default
		d := newTestDispatcher(runner, ux)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolProposeCommand, map[string]any{
			"command_to_propose":  "pip install requests",
			"command_description": "install the missing dependency",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status,
			"a decline is an answer, not a failure")
		assert.Equal(t, false, res.Payload["user_confirmation"])
		assert.Equal(t, false, res.Payload["executed"])
		assert.Zero(t, runner.CallCount())
		require.Len(t, ux.Blocks, 1)
		assert.Contains(t, ux.Blocks[0], "$ pip install requests")
	})

	t.Run("confirmed command runs", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner().Script("pip install requests", &subprocess.Result{
			Stdout:   "Successfully installed requests-2.32.0\n",
			ExitCode: 0,
		})
		ux := NewScriptedInteractor()
		ux.YesNoAnswers = []bool{true}
		d := newTestDispatcher(runner, ux)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolProposeCommand, map[string]any{
			"command_to_propose":  "pip install requests",
			"command_description": "install the missing dependency",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "fix command succeeded", res.Message)
		assert.Equal(t, true, res.Payload["user_confirmation"])
		assert.Equal(t, true, res.Payload["executed"])
		assert.Equal(t, 1, runner.CallCount())
		assert.True(t, res.Effects.HasCommandOutput,
			"a command that ran produces output for the error history")
		assert.Contains(t, res.Effects.CommandOutput, "Successfully installed")
	})

	t.Run("fix commands bypass the denylist", func(t *testing.T) {
		// The user sees the exact command and confirms it; cleanup
		// commands like rm are legitimate fixes.
		runner := subprocess.NewScriptedRunner().Script("rm -rf __pycache__", &subprocess.Result{
			ExitCode: 0,
		})
		ux := NewScriptedInteractor()
		ux.YesNoAnswers = []bool{true}
		d := newTestDispatcher(runner, ux)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolProposeCommand, map[string]any{
			"command_to_propose":  "rm -rf __pycache__",
			"command_description": "clear stale bytecode",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, 1, runner.CallCount())
	})

	t.Run("confirmed command that fails reports the exit", func(t *testing.T) {
		runner := subprocess.NewScriptedRunner().Script("pip install requests", &subprocess.Result{
			Stderr:   "ERROR: no network\n",
			ExitCode: 1,
		})
		ux := NewScriptedInteractor()
		ux.YesNoAnswers = []bool{true}
		d := newTestDispatcher(runner, ux)
		session := newTestSession(t)

		res := d.Execute(context.Background(), session, ToolProposeCommand, map[string]any{
			"command_to_propose":  "pip install requests",
			"command_description": "install the missing dependency",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "fix command exited 1", res.Message)
		assert.Equal(t, 1, res.Payload["exit_code"])
	})

	t.Run("execution disabled by constraints", func(t *testing.T) {
		d := newTestDispatcher(nil, nil)
		session := newTestSession(t)
		session.Constraints.AllowCommandExecution = false

		res := d.Execute(context.Background(), session, ToolProposeCommand, map[string]any{
			"command_to_propose":  "pip install requests",
			"command_description": "install the missing dependency",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
	})
}
