// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the debugging session loop.
//
// # Description
//
// The orchestrator drives one session through the state machine:
// optimize the context, assemble the prompt, ask the planner for a
// decision, validate it, gate it against recent duplicates, dispatch
// the tool, and commit the step plus its effects back to the context.
// Termination comes from finish_debugging, the step cap, three
// consecutive failed steps, a spent planner recovery, or cancellation.
//
// The loop is single-threaded. There is never more than one
// outstanding tool invocation, and a step's context update commits
// before the next planner call.
//
// # Thread Safety
//
// One Orchestrator may serve sessions sequentially or concurrently,
// but each Session must be driven by exactly one Run call.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/evolution"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/llm"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
)

// Default loop tunables.
const (
	// DefaultMaxSteps caps a session when neither the options nor the
	// context constraints set a limit.
	DefaultMaxSteps = 20

	// DefaultDedupWindow is how many previous steps the duplicate gate
	// inspects.
	DefaultDedupWindow = 3

	// DefaultFailureLimit ends the session after this many consecutive
	// failed steps.
	DefaultFailureLimit = 3

	// DefaultPacingInterval spaces loop iterations so tool output and
	// prompts stay humanly followable.
	DefaultPacingInterval = 500 * time.Millisecond

	// DefaultPromptBudget bounds the assembled user prompt in
	// characters, roughly 8k tokens.
	DefaultPromptBudget = 32000
)

// Options wires an Orchestrator.
type Options struct {
	// Planner produces the next-action decisions. Required.
	Planner llm.Client

	// Dispatcher executes catalog tools. Required.
	Dispatcher *tools.Dispatcher

	// Interactor displays banners and conclusions. Required.
	Interactor tools.Interactor

	// Engine applies error-evolution transitions on command output.
	// Nil builds a default engine.
	Engine *evolution.Engine

	// Logger defaults to the process logger.
	Logger *logging.Logger

	// Optimizer tunes context compaction. Zero fields take defaults.
	Optimizer agentcontext.OptimizerConfig

	// MaxSteps overrides the context constraint when positive.
	MaxSteps int

	// DedupWindow, FailureLimit, PacingInterval, and PromptBudget
	// default to the package constants when zero.
	DedupWindow    int
	FailureLimit   int
	PacingInterval time.Duration
	PromptBudget   int

	// MaxPlannerTokens caps each completion; zero lets the client
	// default apply.
	MaxPlannerTokens int

	// Temperature for planner sampling. Zero uses the provider
	// default; ignored entirely when Deterministic is set.
	Temperature float64

	// Deterministic requests greedy decoding from the planner.
	Deterministic bool

	// ForceJSON asks the backend for strict JSON output. Extraction
	// still tolerates fenced or prose-wrapped responses either way.
	ForceJSON bool

	// Refresher, when set, runs between steps to invalidate context
	// caches made stale by filesystem changes.
	Refresher ContextRefresher
}

// ContextRefresher invalidates stale context caches between steps. The
// loop calls Apply on the goroutine that owns the session context.
type ContextRefresher interface {
	Apply(sctx *agentcontext.AgentContext) int
}

// RunResult summarizes a finished session for the caller.
type RunResult struct {
	SessionID    string
	State        SessionState
	FinalMessage string
	Metrics      SessionMetrics
	Duration     time.Duration
}

// Orchestrator drives debugging sessions.
type Orchestrator struct {
	planner    llm.Client
	dispatcher *tools.Dispatcher
	ux         tools.Interactor
	engine     *evolution.Engine
	log        *logging.Logger
	limiter    *rate.Limiter
	opts       Options
}

// NewOrchestrator validates and wires the loop dependencies.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Interactor == nil {
		return nil, errors.New("interactor is required")
	}
	if opts.Engine == nil {
		opts.Engine = evolution.NewEngine(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.FailureLimit <= 0 {
		opts.FailureLimit = DefaultFailureLimit
	}
	if opts.PacingInterval <= 0 {
		opts.PacingInterval = DefaultPacingInterval
	}
	if opts.PromptBudget <= 0 {
		opts.PromptBudget = DefaultPromptBudget
	}

	return &Orchestrator{
		planner:    opts.Planner,
		dispatcher: opts.Dispatcher,
		ux:         opts.Interactor,
		engine:     opts.Engine,
		log:        opts.Logger,
		limiter:    rate.NewLimiter(rate.Every(opts.PacingInterval), 1),
		opts:       opts,
	}, nil
}

// Run drives a session from Initialized to a terminal state.
//
// Inputs:
//   - ctx: cancels the session; cancellation ends it as AbortedByUser
//   - session: a fresh session holding a seeded context
//
// Outputs:
//   - *RunResult: the terminal state, final message, and counters
//   - error: nil on any terminal outcome; non-nil only for misuse
//     (nil or already-driven session) or an internal transition bug
func (o *Orchestrator) Run(ctx context.Context, session *Session) (*RunResult, error) {
	if session == nil || session.Context == nil {
		return nil, fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if session.State() != StateInitialized {
		return nil, fmt.Errorf("%w: state %s", ErrInvalidSession, session.State())
	}

	o.log.Info("session starting",
		"session_id", session.ID,
		"working_directory", session.Context.WorkingDirectory,
		"initial_command", session.Context.InitialCommandRun.Command)

	if err := session.transition(StatePlanning); err != nil {
		return nil, err
	}
	if err := o.runLoop(ctx, session); err != nil {
		return nil, err
	}

	result := &RunResult{
		SessionID:    session.ID,
		State:        session.State(),
		FinalMessage: session.FinalMessage(),
		Metrics:      session.Metrics(),
		Duration:     time.Since(session.StartedAt),
	}
	o.log.Info("session finished",
		"session_id", session.ID,
		"state", string(result.State),
		"steps", result.Metrics.StepsTaken,
		"tokens", result.Metrics.TokensUsed,
		"duration", result.Duration.String())
	return result, nil
}

// runLoop iterates until a terminal state. Each pass covers exactly one
// planner decision: limits, plan, gate, dispatch, update.
func (o *Orchestrator) runLoop(ctx context.Context, session *Session) error {
	recoveryUsed := false
	maxSteps := o.maxSteps(session)

	for {
		if err := o.limiter.Wait(ctx); err != nil {
			return o.conclude(session, StateAbortedByUser, "Session Aborted",
				"Interrupted before the next step.")
		}

		if o.opts.Refresher != nil {
			if n := o.opts.Refresher.Apply(session.Context); n > 0 {
				o.log.Debug("stale caches dropped before planning",
					"session_id", session.ID, "entries", n)
			}
		}

		stepNo := session.Context.NextStepNo()
		if stepNo > maxSteps {
			return o.conclude(session, StateStepsExhausted, "Step Limit Reached",
				fmt.Sprintf("Stopping after %d steps without a resolution. The session context and error timeline are preserved in the session log.", maxSteps))
		}
		if failures := session.Context.ConsecutiveFailures(); failures >= o.opts.FailureLimit {
			return o.conclude(session, StateCannotResolve, "Stopping",
				fmt.Sprintf("The last %d steps all failed; stopping rather than repeating unproductive actions.", failures))
		}

		stepCtx, span := startStepSpan(ctx, session.ID, stepNo)
		stepStart := time.Now()

		decision, planErr := o.plan(stepCtx, session, stepNo)
		if planErr != nil {
			span.End()
			if ctx.Err() != nil {
				return o.conclude(session, StateAbortedByUser, "Session Aborted",
					"Interrupted during planning.")
			}
			o.log.Warn("planner decision unusable",
				"session_id", session.ID,
				"step", stepNo,
				"error", planErr.Error())

			if errors.Is(planErr, ErrValidation) && decision != nil {
				o.recordRejectedDecision(session, stepNo, decision, planErr)
			}
			if recoveryUsed {
				return o.conclude(session, StateCannotResolve, "Planner Failure",
					"The planner could not produce a usable action even after asking for clarification.")
			}
			recoveryUsed = true
			decision = synthesizeRecovery(planErr)
			o.log.Info("synthesized clarification recovery", "session_id", session.ID)
		}

		if err := session.transition(StateDispatching); err != nil {
			span.End()
			return err
		}

		// A recorded rejection advances the history, so re-derive the
		// step number for the dispatched action.
		stepNo = session.Context.NextStepNo()
		terminal, result, err := o.dispatchAndUpdate(stepCtx, session, decision, stepNo)
		if err != nil {
			span.End()
			return err
		}

		recordStepMetrics(stepCtx, time.Since(stepStart), string(decision.Tool), result.Status)
		span.End()

		if terminal != "" {
			title := conclusionTitle(terminal)
			message := result.Message
			if terminal == StateAbortedByUser && message == "" {
				message = "Interrupted."
			}
			return o.conclude(session, terminal, title, message)
		}

		if err := session.transition(StatePlanning); err != nil {
			return err
		}
	}
}

// plan optimizes the context, assembles the prompt, calls the planner,
// and validates the response.
//
// On a validation failure the returned decision is the rejected partial
// decision, so the caller can record what the planner attempted.
func (o *Orchestrator) plan(ctx context.Context, session *Session, stepNo int) (*Decision, error) {
	optimized := agentcontext.Optimize(session.Context, o.opts.Optimizer)
	system := BuildSystemPrompt(optimized.AvailableTools)
	user := BuildUserPrompt(optimized, stepNo, o.opts.PromptBudget)

	resp, err := o.planner.Complete(ctx, &llm.Request{
		SystemPrompt:  system,
		Prompt:        user,
		MaxTokens:     o.opts.MaxPlannerTokens,
		Temperature:   o.opts.Temperature,
		Deterministic: o.opts.Deterministic,
		ForceJSON:     o.opts.ForceJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanner, err)
	}
	session.recordPlannerCall(resp.TokensUsed(), resp.Retries)
	recordPlannerRetries(ctx, resp.Retries)

	o.log.Debug("planner responded",
		"session_id", session.ID,
		"step", stepNo,
		"model", resp.Model,
		"tokens", resp.TokensUsed(),
		"retries", resp.Retries)

	return ParseDecision(resp.Content)
}

// recordRejectedDecision commits a failed step naming the tool the
// planner attempted, so the rejection is visible in the next prompt.
func (o *Orchestrator) recordRejectedDecision(session *Session, stepNo int, decision *Decision, planErr error) {
	step := agentcontext.Step{
		StepNo:  stepNo,
		Thought: decision.Thought,
		Action: agentcontext.ActionTaken{
			Tool:       string(decision.Tool),
			Parameters: decision.Params,
		},
		Result: agentcontext.StepResult{
			Status:  agentcontext.StatusError,
			Message: planErr.Error(),
		},
	}
	sig := Signature(decision.Tool, decision.Params, session.Context.WorkingDirectory)
	session.Context.AppendStep(step, sig)
	session.recordStep()
}

// synthesizeRecovery builds the clarification action dispatched in
// place of an unusable planner decision.
func synthesizeRecovery(planErr error) *Decision {
	return &Decision{
		Thought: "The planner response was unusable; asking the user how to proceed.",
		Tool:    tools.ToolAskUser,
		Params: map[string]any{
			"question_for_user": fmt.Sprintf(
				"I could not produce a valid next action (%v). How would you like me to proceed?", planErr),
		},
	}
}

// dispatchAndUpdate runs the duplicate gate and the tool, then commits
// the step and its effects. It returns the terminal state when the
// step ends the session, otherwise an empty state.
func (o *Orchestrator) dispatchAndUpdate(ctx context.Context, session *Session, decision *Decision, stepNo int) (SessionState, *tools.Result, error) {
	sig := Signature(decision.Tool, decision.Params, session.Context.WorkingDirectory)

	var result *tools.Result
	if dup := session.Context.FindDuplicate(sig, o.opts.DedupWindow, stepNo); dup != nil {
		result = skippedResult(dup)
		session.recordDedupSkip()
		recordDedupSkip(ctx, string(decision.Tool))
		o.log.Info("duplicate action skipped",
			"session_id", session.ID,
			"step", stepNo,
			"tool", string(decision.Tool),
			"duplicate_of_step", dup.StepNo)
	} else {
		result = o.dispatcher.Execute(ctx, session.Context, decision.Tool, decision.Params)
		session.recordToolCall()
		o.log.Debug("tool executed",
			"session_id", session.ID,
			"step", stepNo,
			"tool", string(decision.Tool),
			"status", result.Status)
	}

	if err := session.transition(StateUpdating); err != nil {
		return "", nil, err
	}

	step := agentcontext.Step{
		StepNo:  stepNo,
		Thought: decision.Thought,
		Action: agentcontext.ActionTaken{
			Tool:       string(decision.Tool),
			Parameters: decision.Params,
		},
		Result: agentcontext.StepResult{
			Status:  result.Status,
			Message: result.Message,
			Payload: result.Payload,
		},
	}
	session.Context.AppendStep(step, sig)
	session.recordStep()
	o.commitEffects(session, result, stepNo)

	if result.Effects.FinalStatus != "" {
		if state, ok := terminalForFinalStatus(result.Effects.FinalStatus); ok {
			return state, result, nil
		}
	}
	if ctx.Err() != nil {
		// The interrupted tool's partial result is already committed.
		return StateAbortedByUser, result, nil
	}
	return "", result, nil
}

// commitEffects applies a result's requested context mutations. This is
// the only place tool output writes into the session context.
func (o *Orchestrator) commitEffects(session *Session, result *tools.Result, stepNo int) {
	eff := result.Effects
	sctx := session.Context

	if eff.FileRead != nil {
		sctx.CacheFileRead(eff.FileRead.Path, eff.FileRead.Content, stepNo)
	}
	if eff.Structure != nil {
		sctx.KnowledgeBase.FileStructure = eff.Structure
	}
	if eff.Search != nil {
		sctx.KnowledgeBase.SearchResults[eff.Search.Key] = eff.Search.Entry
	}
	for _, path := range eff.Discovered {
		sctx.FileState.AddDiscovered(path)
	}
	for _, meta := range eff.FileMeta {
		sctx.KnowledgeBase.RecordFileMetadata(meta.Path, meta.MTime, meta.Size)
	}
	if eff.HasCommandOutput {
		o.engine.Update(sctx, eff.CommandOutput, stepNo)
	}
}

// skippedResult builds the gate's response to a duplicate action: the
// prior result plus a pointer at the step it came from.
func skippedResult(dup *agentcontext.RecentAction) *tools.Result {
	return &tools.Result{
		Status:  agentcontext.StatusSkipped,
		Message: fmt.Sprintf("identical action already taken at step %d", dup.StepNo),
		Payload: map[string]any{
			"duplicate_step":  dup.StepNo,
			"previous_result": dup.Result,
		},
	}
}

// conclude transitions to a terminal state, shows the banner, and
// stores the final message.
func (o *Orchestrator) conclude(session *Session, state SessionState, title, message string) error {
	if err := session.conclude(state, message); err != nil {
		return err
	}
	o.ux.DisplayBlock(title, message)
	o.log.Info("session concluded",
		"session_id", session.ID,
		"state", string(state))
	return nil
}

// conclusionTitle maps a terminal state to its banner title.
func conclusionTitle(state SessionState) string {
	switch state {
	case StateResolved:
		return "Resolved"
	case StateGuidanceProvided:
		return "Guidance"
	case StateCannotResolve:
		return "Unresolved"
	case StateAbortedByUser:
		return "Session Aborted"
	case StateStepsExhausted:
		return "Step Limit Reached"
	}
	return "Session Complete"
}

// maxSteps resolves the step cap: options override, then the context
// constraint, then the package default.
func (o *Orchestrator) maxSteps(session *Session) int {
	if o.opts.MaxSteps > 0 {
		return o.opts.MaxSteps
	}
	if limit := session.Context.Constraints.MaxSessionSteps; limit > 0 {
		return limit
	}
	return DefaultMaxSteps
}
