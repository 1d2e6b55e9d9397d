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

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// askUser blocks on a free-form question to the user and returns the
// reply to the planner.
func (d *Dispatcher) askUser(ctx context.Context, p AskUserParams) *Result {
	reply, err := d.ux.AskInput(ctx, p.QuestionForUser)
	if err != nil {
		return errorResult(fmt.Sprintf("asking user: %v", err))
	}
	return successResult("user replied", map[string]any{
		"question":   p.QuestionForUser,
		"user_reply": reply,
	})
}

// finish ends the session. The orchestrator observes the finished
// status and the final status effect, and stops the loop.
func (d *Dispatcher) finish(p FinishParams) *Result {
	d.log.Info("session finishing", "final_status", p.FinalStatus)
	return &Result{
		Status:  agentcontext.StatusFinished,
		Message: p.ConclusionMessage,
		Payload: map[string]any{
			"conclusion_message_for_user": p.ConclusionMessage,
			"final_status":                p.FinalStatus,
		},
		Effects: Effects{FinalStatus: p.FinalStatus},
	}
}
