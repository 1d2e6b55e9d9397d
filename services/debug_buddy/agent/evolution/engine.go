// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolution

import (
	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// Engine applies error-evolution state transitions to a session
// context. It is stateless between calls; all state lives on the
// AgentContext.
//
// Thread Safety:
//
//	Engine shares the orchestrator's single-threaded discipline and
//	must not be called concurrently for the same context.
type Engine struct {
	log *logging.Logger
}

// NewEngine creates an evolution engine. A nil logger falls back to the
// process default.
func NewEngine(log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	return &Engine{log: log}
}

// Update parses the combined output of a command executed at step and
// applies the blocking-error transition:
//
//   - output parses clean, previous error existed: the previous error
//     moves to solved_issues with resolution_step = step.
//   - new error or progression: the previous error (if any) is archived
//     with resolution_step = step-1 and the parsed record becomes
//     current with first_seen_step = step.
//   - same error: the current record's last_seen_step advances.
//
// Every call appends one entry to the progression ledger, including
// clean runs, so the ledger reads as a step-by-step error timeline.
//
// Outputs:
//   - the comparison outcome and the parsed record (nil on clean output)
func (e *Engine) Update(ctx *agentcontext.AgentContext, combinedOutput string, step int) (Comparison, *agentcontext.ErrorRecord) {
	previous := ctx.CurrentBlockingError
	current := Parse(combinedOutput)
	cmp := Compare(previous, current)

	switch cmp {
	case Resolved:
		ctx.ArchiveSolved(step)
		e.log.Info("blocking error resolved",
			"step", step,
			"error_type", previous.Type,
			"first_seen_step", previous.FirstSeenStep)

	case NewError, Progression:
		if previous != nil {
			ctx.ArchiveSolved(step - 1)
			e.log.Info("blocking error superseded",
				"step", step,
				"comparison", string(cmp),
				"old_type", previous.Type,
				"new_type", current.Type)
		} else {
			e.log.Info("blocking error detected",
				"step", step,
				"error_type", current.Type,
				"message", current.Message)
		}
		ctx.InstallCurrentError(current, step)

	case SameError:
		ctx.TouchCurrentError(step)
		e.log.Debug("blocking error persists",
			"step", step,
			"error_type", current.Type,
			"first_seen_step", ctx.CurrentBlockingError.FirstSeenStep)

	case NoError:
		e.log.Debug("output parsed clean", "step", step)
	}

	ctx.RecordProgression(current, previous, step)
	return cmp, current
}
