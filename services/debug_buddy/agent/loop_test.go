// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/llm"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/subprocess"
)

// newLoopContext builds a seeded session context over a temp project:
// a blocking KeyError in etl.py, discovered files, and the catalog.
func newLoopContext(t *testing.T) *agentcontext.AgentContext {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "etl.py"),
		[]byte("rows = load(\"orders.csv\")\nprint(rows[0][\"order_id\"])\n"), 0o644))

	sctx := agentcontext.New(
		"my ETL job crashes",
		agentcontext.CommandDetails{
			Command:  "python etl.py",
			Stderr:   "Traceback (most recent call last):\n  File \"etl.py\", line 2, in <module>\nKeyError: 'order_id'",
			ExitCode: 1,
		},
		root,
		agentcontext.DefaultConstraints(),
		agentcontext.Limits{},
	)
	sctx.AvailableTools = tools.Descriptors()
	sctx.FileState.DiscoveredFiles = []string{"etl.py"}
	sctx.FileState.PrimaryErrorFile = "etl.py"
	sctx.InstallCurrentError(&agentcontext.ErrorRecord{
		Type:     "KeyError",
		Message:  "'order_id'",
		FileRefs: []string{"etl.py"},
	}, 0)
	return sctx
}

// newTestOrchestrator wires an orchestrator around scripted fakes with
// fast pacing.
func newTestOrchestrator(t *testing.T, planner llm.Client, ux tools.Interactor, runner subprocess.Runner, tweak func(*Options)) *Orchestrator {
	t.Helper()
	if runner == nil {
		runner = subprocess.NewScriptedRunner()
	}
	if ux == nil {
		ux = tools.NewScriptedInteractor()
	}
	opts := Options{
		Planner:        planner,
		Dispatcher:     tools.NewDispatcher(runner, nil, ux, nil, tools.DefaultConfig()),
		Interactor:     ux,
		PacingInterval: time.Millisecond,
	}
	if tweak != nil {
		tweak(&opts)
	}
	o, err := NewOrchestrator(opts)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_RequiredDeps(t *testing.T) {
	ux := tools.NewScriptedInteractor()
	dispatcher := tools.NewDispatcher(subprocess.NewScriptedRunner(), nil, ux, nil, tools.DefaultConfig())

	_, err := NewOrchestrator(Options{Dispatcher: dispatcher, Interactor: ux})
	assert.ErrorContains(t, err, "planner")

	_, err = NewOrchestrator(Options{Planner: llm.NewMockClient(), Interactor: ux})
	assert.ErrorContains(t, err, "dispatcher")

	_, err = NewOrchestrator(Options{Planner: llm.NewMockClient(), Dispatcher: dispatcher})
	assert.ErrorContains(t, err, "interactor")
}

func TestRun_NilSession(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockClient(), nil, nil, nil)

	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRun_ResolvedFlow(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("rerun the pipeline to check the current state", "run_diagnostic_command",
		map[string]any{"command_string": "python etl.py"})
	mock.QueueDecision("the rerun is clean, the KeyError is gone", "finish_debugging",
		map[string]any{
			"final_status":                tools.StatusResolved,
			"conclusion_message_for_user": "The KeyError is fixed; the pipeline runs clean.",
		})

	runner := subprocess.NewScriptedRunner().Script("python etl.py", &subprocess.Result{
		Stdout:   "Pipeline complete. 1200 rows written.",
		ExitCode: 0,
	})
	ux := tools.NewScriptedInteractor()
	o := newTestOrchestrator(t, mock, ux, runner, nil)

	session := NewSession(newLoopContext(t))
	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateResolved, result.State)
	assert.Equal(t, "The KeyError is fixed; the pipeline runs clean.", result.FinalMessage)
	assert.Equal(t, 2, result.Metrics.StepsTaken)
	assert.Equal(t, 2, result.Metrics.PlannerCalls)
	assert.Equal(t, 2, result.Metrics.ToolCalls)
	assert.Equal(t, 0, result.Metrics.DedupSkips)

	// The clean rerun resolved the blocking error through the
	// evolution engine before finish_debugging was even asked for.
	sctx := session.Context
	assert.Nil(t, sctx.CurrentBlockingError)
	require.Len(t, sctx.SolvedIssues, 1)
	assert.Equal(t, "KeyError", sctx.SolvedIssues[0].Error.Type)
	assert.Equal(t, 1, sctx.SolvedIssues[0].ResolutionStep)

	require.Len(t, sctx.SessionHistory, 2)
	assert.Equal(t, agentcontext.StatusSuccess, sctx.SessionHistory[0].Result.Status)
	assert.Equal(t, agentcontext.StatusFinished, sctx.SessionHistory[1].Result.Status)

	assert.NoError(t, mock.Verify())
	require.NotEmpty(t, ux.Blocks)
	assert.Contains(t, ux.Blocks[len(ux.Blocks)-1], "Resolved")
}

func TestRun_DedupSkipsRepeatedAction(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("read the failing file", "read_file_content",
		map[string]any{"file_path": "etl.py"})
	mock.QueueDecision("read it once more", "read_file_content",
		map[string]any{"file_path": "./etl.py"})
	mock.QueueDecision("nothing new to learn", "finish_debugging",
		map[string]any{
			"final_status":                tools.StatusGuidanceProvided,
			"conclusion_message_for_user": "Rename the column to order_id in the source CSV.",
		})

	o := newTestOrchestrator(t, mock, nil, nil, nil)
	session := NewSession(newLoopContext(t))

	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateGuidanceProvided, result.State)
	assert.Equal(t, 1, result.Metrics.DedupSkips)
	// The skipped step never reached the dispatcher.
	assert.Equal(t, 2, result.Metrics.ToolCalls)

	history := session.Context.SessionHistory
	require.Len(t, history, 3)
	assert.Equal(t, agentcontext.StatusSuccess, history[0].Result.Status)
	assert.Equal(t, agentcontext.StatusSkipped, history[1].Result.Status)
	assert.Equal(t, 1, history[1].Result.Payload["duplicate_step"])
	assert.Contains(t, history[1].Result.Message, "step 1")
}

func TestRun_PlaceholderRejectionRecovery(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("read the data file", "read_file_content",
		map[string]any{"file_path": "path/to/data"})
	mock.QueueDecision("the user pointed at etl.py, wrap up with advice", "finish_debugging",
		map[string]any{
			"final_status":                tools.StatusGuidanceProvided,
			"conclusion_message_for_user": "Check the column names in etl.py line 2.",
		})

	ux := tools.NewScriptedInteractor()
	ux.InputAnswers = []string{"focus on etl.py"}
	o := newTestOrchestrator(t, mock, ux, nil, nil)

	session := NewSession(newLoopContext(t))
	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, StateGuidanceProvided, result.State)

	history := session.Context.SessionHistory
	require.Len(t, history, 3)

	// Step 1 is the rejected decision, recorded so the planner sees it.
	assert.Equal(t, "read_file_content", history[0].Action.Tool)
	assert.Equal(t, agentcontext.StatusError, history[0].Result.Status)
	assert.Contains(t, history[0].Result.Message, "placeholder")

	// Step 2 is the synthesized clarification, dispatched normally.
	assert.Equal(t, string(tools.ToolAskUser), history[1].Action.Tool)
	assert.Equal(t, agentcontext.StatusSuccess, history[1].Result.Status)
	assert.Equal(t, "focus on etl.py", history[1].Result.Payload["user_reply"])

	require.NotEmpty(t, ux.Prompts)
	assert.Contains(t, ux.Prompts[0], "could not produce a valid next action")
	assert.NoError(t, mock.Verify())
}

func TestRun_SecondPlannerFailureEndsSession(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueRawContent("Let me take a look around the project first.")
	mock.QueueRawContent("Hmm, I am still not sure what to do.")

	ux := tools.NewScriptedInteractor()
	o := newTestOrchestrator(t, mock, ux, nil, nil)

	session := NewSession(newLoopContext(t))
	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateCannotResolve, result.State)
	assert.Contains(t, result.FinalMessage, "planner")
	assert.Equal(t, 2, mock.CallCount())

	// Only the recovery clarification made it into the history; a
	// response with no JSON names no tool to record.
	history := session.Context.SessionHistory
	require.Len(t, history, 1)
	assert.Equal(t, string(tools.ToolAskUser), history[0].Action.Tool)
}

func TestRun_StepCapExhaustsSession(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("look at the project root", "list_directory_contents", map[string]any{})
	mock.QueueDecision("render the tree", "get_file_structure", map[string]any{})

	ux := tools.NewScriptedInteractor()
	o := newTestOrchestrator(t, mock, ux, nil, func(opts *Options) {
		opts.MaxSteps = 2
	})

	session := NewSession(newLoopContext(t))
	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateStepsExhausted, result.State)
	assert.Contains(t, result.FinalMessage, "2 steps")
	assert.Len(t, session.Context.SessionHistory, 2)
	assert.NoError(t, mock.Verify())
	require.NotEmpty(t, ux.Blocks)
	assert.Contains(t, ux.Blocks[len(ux.Blocks)-1], "Step Limit Reached")
}

func TestRun_ThreeConsecutiveFailuresStop(t *testing.T) {
	// No discovered files and no primary error file, so a read of a
	// missing path cannot fall back to anything and fails.
	root := t.TempDir()
	sctx := agentcontext.New("fix it",
		agentcontext.CommandDetails{Command: "python app.py", Stderr: "SyntaxError: invalid syntax", ExitCode: 1},
		root, agentcontext.DefaultConstraints(), agentcontext.Limits{})
	sctx.AvailableTools = tools.Descriptors()

	mock := llm.NewMockClient()
	mock.QueueDecision("try a", "read_file_content", map[string]any{"file_path": "a.py"})
	mock.QueueDecision("try b", "read_file_content", map[string]any{"file_path": "b.py"})
	mock.QueueDecision("try c", "read_file_content", map[string]any{"file_path": "c.py"})

	o := newTestOrchestrator(t, mock, nil, nil, nil)
	session := NewSession(sctx)

	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateCannotResolve, result.State)
	assert.Contains(t, result.FinalMessage, "3 steps")
	history := session.Context.SessionHistory
	require.Len(t, history, 3)
	for _, step := range history {
		assert.Equal(t, agentcontext.StatusError, step.Result.Status)
	}
	assert.NoError(t, mock.Verify())
}

func TestRun_CanceledContextAborts(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockClient(), nil, nil, nil)
	session := NewSession(newLoopContext(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, StateAbortedByUser, result.State)
	assert.Equal(t, 0, result.Metrics.StepsTaken)
}

func TestRun_FinishStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   SessionState
	}{
		{tools.StatusResolved, StateResolved},
		{tools.StatusGuidanceProvided, StateGuidanceProvided},
		{tools.StatusCannotResolve, StateCannotResolve},
		{tools.StatusAbortedByUser, StateAbortedByUser},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			mock := llm.NewMockClient()
			mock.QueueDecision("wrap up", "finish_debugging", map[string]any{
				"final_status":                tt.status,
				"conclusion_message_for_user": "done",
			})
			o := newTestOrchestrator(t, mock, nil, nil, nil)

			result, err := o.Run(context.Background(), NewSession(newLoopContext(t)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.State)
			assert.Equal(t, "done", result.FinalMessage)
		})
	}
}

func TestRun_RejectsReusedSession(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("wrap up", "finish_debugging", map[string]any{
		"final_status":                tools.StatusResolved,
		"conclusion_message_for_user": "done",
	})
	o := newTestOrchestrator(t, mock, nil, nil, nil)
	session := NewSession(newLoopContext(t))

	_, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	_, err = o.Run(context.Background(), session)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRun_ToolErrorSurfacesAndLoopContinues(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("read a file that is not there", "read_file_content",
		map[string]any{"file_path": "missing/nowhere.py"})
	mock.QueueDecision("fall back to the file the traceback names", "read_file_content",
		map[string]any{"file_path": "etl.py"})
	mock.QueueDecision("enough context gathered", "finish_debugging",
		map[string]any{
			"final_status":                tools.StatusGuidanceProvided,
			"conclusion_message_for_user": "The CSV lacks an order_id column.",
		})

	sctx := newLoopContext(t)
	// Drop the fallback candidates so the first read genuinely fails.
	sctx.FileState.DiscoveredFiles = nil
	sctx.FileState.PrimaryErrorFile = ""

	o := newTestOrchestrator(t, mock, nil, nil, nil)
	session := NewSession(sctx)

	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, StateGuidanceProvided, result.State)

	history := session.Context.SessionHistory
	require.Len(t, history, 3)
	assert.Equal(t, agentcontext.StatusError, history[0].Result.Status)
	assert.Contains(t, history[0].Result.Message, "File not found")
	assert.Equal(t, agentcontext.StatusSuccess, history[1].Result.Status)

	// The successful read landed in the knowledge-base cache.
	_, cached := session.Context.KnowledgeBase.FilesRead["etl.py"]
	assert.True(t, cached)
}

// countingRefresher records how often the loop drained it.
type countingRefresher struct {
	calls int
}

func (r *countingRefresher) Apply(*agentcontext.AgentContext) int {
	r.calls++
	return 0
}

func TestRun_RefresherRunsBeforeEachStep(t *testing.T) {
	mock := llm.NewMockClient()
	mock.QueueDecision("read the failing file", "read_file_content",
		map[string]any{"file_path": "etl.py"})
	mock.QueueDecision("enough context gathered", "finish_debugging",
		map[string]any{
			"final_status":                tools.StatusGuidanceProvided,
			"conclusion_message_for_user": "The CSV lacks an order_id column.",
		})

	ref := &countingRefresher{}
	o := newTestOrchestrator(t, mock, nil, nil, func(opts *Options) {
		opts.Refresher = ref
	})

	session := NewSession(newLoopContext(t))
	result, err := o.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StateGuidanceProvided, result.State)
	assert.Equal(t, 2, ref.calls, "one drain per loop iteration")
}
