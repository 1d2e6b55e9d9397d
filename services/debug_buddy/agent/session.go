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
	"sync"
	"time"

	"github.com/google/uuid"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
)

// SessionState is one node of the orchestrator state machine.
type SessionState string

const (
	// StateInitialized is the state after seeding, before the first
	// planning call.
	StateInitialized SessionState = "INITIALIZED"

	// StatePlanning covers context optimization, prompt assembly, the
	// planner call, and response validation.
	StatePlanning SessionState = "PLANNING"

	// StateDispatching covers the deduplication gate and the tool call.
	StateDispatching SessionState = "DISPATCHING"

	// StateUpdating commits the step and its effects to the context.
	StateUpdating SessionState = "UPDATING"

	// StateResolved ends a session whose blocking error was fixed.
	StateResolved SessionState = "RESOLVED"

	// StateGuidanceProvided ends a session that concluded with advice
	// rather than an applied fix.
	StateGuidanceProvided SessionState = "GUIDANCE_PROVIDED"

	// StateCannotResolve ends a session the agent gave up on.
	StateCannotResolve SessionState = "CANNOT_RESOLVE"

	// StateAbortedByUser ends an interrupted session.
	StateAbortedByUser SessionState = "ABORTED_BY_USER"

	// StateStepsExhausted ends a session that hit the step cap.
	StateStepsExhausted SessionState = "STEPS_EXHAUSTED"
)

// AllStates returns every session state.
func AllStates() []SessionState {
	return []SessionState{
		StateInitialized,
		StatePlanning,
		StateDispatching,
		StateUpdating,
		StateResolved,
		StateGuidanceProvided,
		StateCannotResolve,
		StateAbortedByUser,
		StateStepsExhausted,
	}
}

// IsTerminal reports whether the state ends the session.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateResolved, StateGuidanceProvided, StateCannotResolve,
		StateAbortedByUser, StateStepsExhausted:
		return true
	}
	return false
}

// terminalForFinalStatus maps a finish_debugging final_status onto the
// terminal session state.
func terminalForFinalStatus(status string) (SessionState, bool) {
	switch status {
	case tools.StatusResolved:
		return StateResolved, true
	case tools.StatusGuidanceProvided:
		return StateGuidanceProvided, true
	case tools.StatusCannotResolve:
		return StateCannotResolve, true
	case tools.StatusAbortedByUser:
		return StateAbortedByUser, true
	}
	return "", false
}

// StateMachine enforces the orchestrator transition graph:
//
//	INITIALIZED → PLANNING            : session started
//	PLANNING    → DISPATCHING         : decision validated (or recovery synthesized)
//	PLANNING    → CANNOT_RESOLVE      : planner failed after its one recovery
//	PLANNING    → STEPS_EXHAUSTED     : step cap hit
//	PLANNING    → ABORTED_BY_USER     : interrupt during planning
//	DISPATCHING → UPDATING            : tool returned (any status)
//	DISPATCHING → ABORTED_BY_USER     : interrupt during a tool call
//	UPDATING    → PLANNING            : step committed, loop continues
//	UPDATING    → <terminal>          : finish_debugging, limits, interrupt
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu          sync.RWMutex
	transitions map[SessionState]map[SessionState]bool
}

// NewStateMachine creates a state machine with the orchestrator's
// transition graph.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[SessionState]map[SessionState]bool),
	}
	for _, state := range AllStates() {
		sm.transitions[state] = make(map[SessionState]bool)
	}

	sm.addTransition(StateInitialized, StatePlanning)

	sm.addTransition(StatePlanning, StateDispatching)
	sm.addTransition(StatePlanning, StateCannotResolve)
	sm.addTransition(StatePlanning, StateStepsExhausted)
	sm.addTransition(StatePlanning, StateAbortedByUser)

	sm.addTransition(StateDispatching, StateUpdating)
	sm.addTransition(StateDispatching, StateAbortedByUser)

	sm.addTransition(StateUpdating, StatePlanning)
	sm.addTransition(StateUpdating, StateResolved)
	sm.addTransition(StateUpdating, StateGuidanceProvided)
	sm.addTransition(StateUpdating, StateCannotResolve)
	sm.addTransition(StateUpdating, StateAbortedByUser)
	sm.addTransition(StateUpdating, StateStepsExhausted)

	return sm
}

func (sm *StateMachine) addTransition(from, to SessionState) {
	sm.transitions[from][to] = true
}

// CanTransition checks whether moving from one state to another is
// valid.
func (sm *StateMachine) CanTransition(from, to SessionState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// DefaultStateMachine is the shared transition graph. Sessions are
// independent; the graph itself is immutable after construction.
var DefaultStateMachine = NewStateMachine()

// SessionMetrics counts what a session did.
type SessionMetrics struct {
	StepsTaken     int `json:"steps_taken"`
	PlannerCalls   int `json:"planner_calls"`
	PlannerRetries int `json:"planner_retries"`
	ToolCalls      int `json:"tool_calls"`
	DedupSkips     int `json:"dedup_skips"`
	TokensUsed     int `json:"tokens_used"`
}

// Session is one interactive debugging run: the working context, the
// state machine position, and counters.
//
// # Thread Safety
//
// The orchestrator drives a session from a single goroutine; the
// mutex exists so signal handlers and status displays can observe
// state concurrently.
type Session struct {
	// ID uniquely identifies the session in logs and the history store.
	ID string

	// Context is the bounded working memory. Only the orchestrator's
	// update step mutates it.
	Context *agentcontext.AgentContext

	// StartedAt is when the session was created.
	StartedAt time.Time

	mu           sync.RWMutex
	state        SessionState
	metrics      SessionMetrics
	finalMessage string
}

// NewSession wraps a seeded context in a fresh session.
func NewSession(agentCtx *agentcontext.AgentContext) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Context:   agentCtx,
		StartedAt: time.Now(),
		state:     StateInitialized,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	return s.State().IsTerminal()
}

// transition moves the session to a new state, enforcing the graph.
func (s *Session) transition(to SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !DefaultStateMachine.CanTransition(s.state, to) {
		return ErrInvalidTransition
	}
	s.state = to
	return nil
}

// conclude moves the session to a terminal state and stores the final
// user-facing message.
func (s *Session) conclude(to SessionState, message string) error {
	if err := s.transition(to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalMessage = message
	return nil
}

// FinalMessage returns the concluding message, empty until terminal.
func (s *Session) FinalMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalMessage
}

// Metrics returns a copy of the session counters.
func (s *Session) Metrics() SessionMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

func (s *Session) recordStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.StepsTaken++
}

func (s *Session) recordPlannerCall(tokens, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.PlannerCalls++
	s.metrics.PlannerRetries += retries
	s.metrics.TokensUsed += tokens
}

func (s *Session) recordToolCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ToolCalls++
}

func (s *Session) recordDedupSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.DedupSkips++
}
