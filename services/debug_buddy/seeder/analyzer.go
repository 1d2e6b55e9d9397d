// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seeder

import (
	"fmt"
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// analyzeInitialOutput parses the failing command's output into the
// blocking error and writes the initial analysis notes.
//
// The evolution engine applies the transition at step 0, which both
// installs the record and opens the progression ledger, so the seeded
// context satisfies the same timeline shape the loop maintains later.
func (s *Seeder) analyzeInitialOutput(sctx *agentcontext.AgentContext) {
	run := sctx.InitialCommandRun
	_, rec := s.engine.Update(sctx, run.CombinedOutput(), 0)

	if rec == nil {
		sctx.KnowledgeBase.AddNote(agentcontext.NoteInitialAnalysis,
			fmt.Sprintf("initial command %q exited %d with no recognizable error pattern in its output",
				run.Command, run.ExitCode), 0)
		return
	}

	sctx.KnowledgeBase.AddNote(agentcontext.NoteInitialAnalysis,
		fmt.Sprintf("initial command %q exited %d; blocking error %s: %s",
			run.Command, run.ExitCode, rec.Type, rec.Message), 0)

	if len(rec.FileRefs) > 0 {
		sctx.KnowledgeBase.AddNote(agentcontext.NoteTracebackFiles,
			"traceback mentions: "+strings.Join(rec.FileRefs, ", "), 0)
	}
}
