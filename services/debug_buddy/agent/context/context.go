// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package context holds the agent's working memory for one debugging
// session.
//
// The AgentContext is the single authoritative session value. It is
// created once at session start, mutated only through the named
// transition methods in this file (AppendStep, InstallCurrentError,
// ArchiveSolved, CacheFileRead, and friends), serialized into every
// planner prompt after optimization, and written to the session log at
// termination.
//
// Each transition preserves the structural invariants:
//
//   - every appended step appends exactly one recent action
//   - recent_actions never exceeds its limit (default 10)
//   - current_blocking_error is nil or matches the latest progression
//     entry that detected an error
//   - files_read keys are paths relative to the working directory
//
// Thread Safety:
//
//	AgentContext is NOT safe for concurrent use. The orchestrator runs
//	single-threaded: exactly one tool invocation is outstanding at any
//	time, and all mutations happen between steps.
package context

import (
	"time"
)

// =============================================================================
// Limits
// =============================================================================

// Limits are the window sizes the context maintains. They come from
// configuration; the zero value is replaced by defaults at construction.
type Limits struct {
	// RecentActions caps the deduplication window. Default 10.
	RecentActions int `json:"recent_actions"`

	// ErrorProgression caps the progression ledger in the optimized
	// view. The authoritative ledger may grow past it. Default 10.
	ErrorProgression int `json:"error_progression"`
}

// DefaultLimits returns the standard window sizes.
func DefaultLimits() Limits {
	return Limits{RecentActions: 10, ErrorProgression: 10}
}

func (l Limits) withDefaults() Limits {
	if l.RecentActions <= 0 {
		l.RecentActions = 10
	}
	if l.ErrorProgression <= 0 {
		l.ErrorProgression = 10
	}
	return l
}

// =============================================================================
// Session Data Model
// =============================================================================

// CommandDetails captures one shell command execution.
type CommandDetails struct {
	Command  string `json:"command_string"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// CombinedOutput returns stderr followed by stdout, the order the
// error parser scans in.
func (c CommandDetails) CombinedOutput() string {
	if c.Stderr == "" {
		return c.Stdout
	}
	if c.Stdout == "" {
		return c.Stderr
	}
	return c.Stderr + "\n" + c.Stdout
}

// ActionTaken records which tool a step invoked and with what
// parameters. Parameters are kept in their validated, normalized form
// so the serialized history reads the way the planner wrote it.
type ActionTaken struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// StepResult is the outcome of one tool invocation.
type StepResult struct {
	// Status is one of "success", "error", "finished", "skipped".
	Status string `json:"status"`

	// Message is a one-line human summary, or the error text when
	// Status is "error".
	Message string `json:"message,omitempty"`

	// Payload carries tool-specific fields (file content, directory
	// entries, command output). Values must be JSON-serializable.
	Payload map[string]any `json:"payload,omitempty"`
}

// OK reports whether the step succeeded (including the terminal
// "finished" status, which is a successful conclusion).
func (r StepResult) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusFinished
}

// Step statuses.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFinished = "finished"
	StatusSkipped  = "skipped"
)

// Step is one orchestrator iteration: the planner's thought, the
// action dispatched, and its result.
type Step struct {
	StepNo  int         `json:"step_no"`
	Thought string      `json:"thought"`
	Action  ActionTaken `json:"action_taken"`
	Result  StepResult  `json:"result"`
}

// RecentAction is the deduplication window entry for a step.
type RecentAction struct {
	Signature  string         `json:"signature"`
	StepNo     int            `json:"step_no"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Result     StepResult     `json:"result"`
}

// =============================================================================
// Error Records
// =============================================================================

// ErrorRecord is a structured view of one blocking error.
type ErrorRecord struct {
	// Type is the taxonomy label, e.g. "module_not_found", "key_error".
	Type string `json:"type"`

	// Message is the matched error message.
	Message string `json:"message"`

	// FileRefs are files mentioned by the traceback, deduplicated.
	FileRefs []string `json:"file_refs,omitempty"`

	// LineRefs are line numbers mentioned by the traceback, deduplicated.
	LineRefs []int `json:"line_refs,omitempty"`

	// RawOutput is the combined output the record was parsed from.
	RawOutput string `json:"raw_output,omitempty"`

	// FirstSeenStep and LastSeenStep bound the error's lifetime.
	FirstSeenStep int `json:"first_seen_step"`
	LastSeenStep  int `json:"last_seen_step"`

	// Status is always "active" while the record is current.
	Status string `json:"status"`
}

// Clone returns a deep copy of the record.
func (e *ErrorRecord) Clone() *ErrorRecord {
	if e == nil {
		return nil
	}
	cp := *e
	cp.FileRefs = append([]string(nil), e.FileRefs...)
	cp.LineRefs = append([]int(nil), e.LineRefs...)
	return &cp
}

// SolvedIssue is a previously blocking error that has since
// disappeared.
type SolvedIssue struct {
	Error          ErrorRecord `json:"error"`
	ResolutionStep int         `json:"resolution_step"`
	ResolvedAt     time.Time   `json:"resolved_at"`
}

// ProgressionEntry is one observation in the chronological error
// ledger.
type ProgressionEntry struct {
	Step          int          `json:"step"`
	ErrorDetected *ErrorRecord `json:"error_detected,omitempty"`
	PreviousError *ErrorRecord `json:"previous_error,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// =============================================================================
// Catalog Descriptors and Constraints
// =============================================================================

// ToolDescriptor describes one catalog tool for the planner prompt.
type ToolDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// Constraints are the session-wide guarantees shown to the planner.
type Constraints struct {
	MaxSessionSteps        int  `json:"max_session_steps"`
	AllowFileModifications bool `json:"allowed_file_modifications"`
	AllowCommandExecution  bool `json:"allowed_command_execution"`
}

// DefaultConstraints returns the standard session constraints: a
// twenty step cap with both proposal paths enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxSessionSteps:        20,
		AllowFileModifications: true,
		AllowCommandExecution:  true,
	}
}

// =============================================================================
// AgentContext
// =============================================================================

// AgentContext is the bounded working memory for one session.
type AgentContext struct {
	InitialUserRequest string         `json:"initial_user_request"`
	InitialCommandRun  CommandDetails `json:"initial_command_run"`

	// WorkingDirectory is absolute and immutable for the session. Path
	// normalization for deduplication uses this, never the process cwd.
	WorkingDirectory string `json:"current_working_directory"`

	// SessionHistory is append-only and strictly monotonic on StepNo.
	SessionHistory []Step `json:"session_history"`

	// RecentActions is the bounded deduplication window.
	RecentActions []RecentAction `json:"recent_actions"`

	SolvedIssues         []SolvedIssue      `json:"solved_issues"`
	CurrentBlockingError *ErrorRecord       `json:"current_blocking_error,omitempty"`
	ErrorProgression     []ProgressionEntry `json:"error_progression"`

	KnowledgeBase *KnowledgeBase `json:"knowledge_base"`
	FileState     *FileState     `json:"file_state"`

	AvailableTools []ToolDescriptor `json:"available_tools"`
	Constraints    Constraints      `json:"constraints"`

	Limits Limits `json:"limits"`
}

// New creates the session context.
//
// Inputs:
//   - userRequest: the free-text goal, may be empty
//   - cmd: the initial command capture (command, stdout, stderr, exit)
//   - cwd: absolute working directory, immutable for the session
//   - constraints: session-wide permissions and the step cap
//   - limits: context window sizes; zero fields take defaults
//
// Outputs:
//   - *AgentContext ready for knowledge-base seeding
func New(userRequest string, cmd CommandDetails, cwd string, constraints Constraints, limits Limits) *AgentContext {
	return &AgentContext{
		InitialUserRequest: userRequest,
		InitialCommandRun:  cmd,
		WorkingDirectory:   cwd,
		SessionHistory:     []Step{},
		RecentActions:      []RecentAction{},
		SolvedIssues:       []SolvedIssue{},
		ErrorProgression:   []ProgressionEntry{},
		KnowledgeBase:      NewKnowledgeBase(),
		FileState:          NewFileState(cwd),
		Constraints:        constraints,
		Limits:             limits.withDefaults(),
	}
}

// NextStepNo returns the step number the next appended step must use.
func (c *AgentContext) NextStepNo() int {
	return len(c.SessionHistory) + 1
}

// AppendStep commits one completed step.
//
// It appends to the session history and records exactly one entry in
// the recent-actions window, trimming the window from the front when
// it exceeds its limit.
func (c *AgentContext) AppendStep(step Step, signature string) {
	c.SessionHistory = append(c.SessionHistory, step)
	c.RecentActions = append(c.RecentActions, RecentAction{
		Signature:  signature,
		StepNo:     step.StepNo,
		Tool:       step.Action.Tool,
		Parameters: step.Action.Parameters,
		Result:     step.Result,
	})
	limit := c.Limits.withDefaults().RecentActions
	if len(c.RecentActions) > limit {
		c.RecentActions = c.RecentActions[len(c.RecentActions)-limit:]
	}
}

// FindDuplicate returns the most recent action with the same signature
// whose step falls within the given window before currentStep, or nil.
func (c *AgentContext) FindDuplicate(signature string, window, currentStep int) *RecentAction {
	for i := len(c.RecentActions) - 1; i >= 0; i-- {
		ra := c.RecentActions[i]
		if ra.StepNo <= currentStep-1 && ra.StepNo > currentStep-1-window && ra.Signature == signature {
			cp := ra
			return &cp
		}
	}
	return nil
}

// InstallCurrentError makes rec the blocking error as of step.
func (c *AgentContext) InstallCurrentError(rec *ErrorRecord, step int) {
	if rec == nil {
		return
	}
	rec.FirstSeenStep = step
	rec.LastSeenStep = step
	rec.Status = "active"
	c.CurrentBlockingError = rec
}

// TouchCurrentError marks the blocking error as still live at step.
// FirstSeenStep is preserved.
func (c *AgentContext) TouchCurrentError(step int) {
	if c.CurrentBlockingError != nil {
		c.CurrentBlockingError.LastSeenStep = step
	}
}

// ArchiveSolved moves the blocking error (if any) into solved_issues
// with the given resolution step and clears it.
func (c *AgentContext) ArchiveSolved(resolutionStep int) {
	if c.CurrentBlockingError == nil {
		return
	}
	c.SolvedIssues = append(c.SolvedIssues, SolvedIssue{
		Error:          *c.CurrentBlockingError,
		ResolutionStep: resolutionStep,
		ResolvedAt:     time.Now(),
	})
	c.CurrentBlockingError = nil
}

// RecordProgression appends one ledger entry. The authoritative ledger
// is unbounded; the optimizer caps the copy used for prompts.
func (c *AgentContext) RecordProgression(detected, previous *ErrorRecord, step int) {
	c.ErrorProgression = append(c.ErrorProgression, ProgressionEntry{
		Step:          step,
		ErrorDetected: detected.Clone(),
		PreviousError: previous.Clone(),
		Timestamp:     time.Now(),
	})
}

// CacheFileRead stores file content in the knowledge base keyed by the
// project-relative path.
func (c *AgentContext) CacheFileRead(relPath, content string, step int) {
	c.KnowledgeBase.FilesRead[relPath] = FileReadEntry{
		Content:      content,
		CachedAtStep: step,
	}
}

// ConsecutiveFailures counts the unbroken run of "error" results at
// the end of the session history.
func (c *AgentContext) ConsecutiveFailures() int {
	count := 0
	for i := len(c.SessionHistory) - 1; i >= 0; i-- {
		if c.SessionHistory[i].Result.Status != StatusError {
			break
		}
		count++
	}
	return count
}

// Clone returns a deep copy of the context. The optimizer operates on
// clones so the authoritative value is never mutated by prompt
// preparation.
func (c *AgentContext) Clone() *AgentContext {
	if c == nil {
		return nil
	}
	cp := *c

	cp.SessionHistory = make([]Step, len(c.SessionHistory))
	for i, s := range c.SessionHistory {
		cp.SessionHistory[i] = cloneStep(s)
	}

	cp.RecentActions = make([]RecentAction, len(c.RecentActions))
	for i, ra := range c.RecentActions {
		cp.RecentActions[i] = RecentAction{
			Signature:  ra.Signature,
			StepNo:     ra.StepNo,
			Tool:       ra.Tool,
			Parameters: cloneParams(ra.Parameters),
			Result:     cloneResult(ra.Result),
		}
	}

	cp.SolvedIssues = make([]SolvedIssue, len(c.SolvedIssues))
	for i, si := range c.SolvedIssues {
		cp.SolvedIssues[i] = SolvedIssue{
			Error:          *si.Error.Clone(),
			ResolutionStep: si.ResolutionStep,
			ResolvedAt:     si.ResolvedAt,
		}
	}

	cp.CurrentBlockingError = c.CurrentBlockingError.Clone()

	cp.ErrorProgression = make([]ProgressionEntry, len(c.ErrorProgression))
	for i, pe := range c.ErrorProgression {
		cp.ErrorProgression[i] = ProgressionEntry{
			Step:          pe.Step,
			ErrorDetected: pe.ErrorDetected.Clone(),
			PreviousError: pe.PreviousError.Clone(),
			Timestamp:     pe.Timestamp,
		}
	}

	cp.KnowledgeBase = c.KnowledgeBase.Clone()
	cp.FileState = c.FileState.Clone()

	cp.AvailableTools = append([]ToolDescriptor(nil), c.AvailableTools...)
	return &cp
}

func cloneStep(s Step) Step {
	return Step{
		StepNo:  s.StepNo,
		Thought: s.Thought,
		Action: ActionTaken{
			Tool:       s.Action.Tool,
			Parameters: cloneParams(s.Action.Parameters),
		},
		Result: cloneResult(s.Result),
	}
}

func cloneResult(r StepResult) StepResult {
	return StepResult{
		Status:  r.Status,
		Message: r.Message,
		Payload: cloneParams(r.Payload),
	}
}

// cloneParams shallow-copies a parameter map. Values are primitives or
// small slices produced by JSON decoding; nested mutation is not part
// of any transition, so one level of copy is sufficient for prompt
// isolation.
func cloneParams(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
