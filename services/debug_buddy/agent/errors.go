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

import "errors"

// Sentinel errors for the agent package.
var (
	// ErrValidation indicates a planner response that parsed but failed
	// schema, catalog, or placeholder rules.
	ErrValidation = errors.New("planner response failed validation")

	// ErrPlanner indicates no usable JSON decision could be obtained
	// from the planner.
	ErrPlanner = errors.New("no usable decision from planner")

	// ErrTool indicates a tool returned an error status.
	ErrTool = errors.New("tool execution failed")

	// ErrDispatch indicates a failure inside the dispatch machinery
	// itself; it is recorded as a tool error with its message.
	ErrDispatch = errors.New("tool dispatch failed")

	// ErrUserAbort indicates the user interrupted the session.
	ErrUserAbort = errors.New("session aborted by user")

	// ErrLimitReached indicates the step cap or the consecutive-failure
	// rule ended the session.
	ErrLimitReached = errors.New("session limit reached")

	// ErrInvalidTransition indicates an invalid session state transition
	// was attempted.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrInvalidSession indicates Run was handed a session that is nil,
	// missing its context, or not in the INITIALIZED state.
	ErrInvalidSession = errors.New("invalid session")
)
