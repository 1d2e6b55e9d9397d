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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// plannerRole is the fixed opening of the system prompt.
const plannerRole = `You are an expert debugging assistant working inside a user's project directory. The user ran a command, it failed, and your job is to find and fix the cause.

## Rules
1. current_blocking_error is your SINGLE focus. Do not investigate anything else until it is resolved.
2. NEVER guess or invent file paths. Use only paths present in file_state, the knowledge base, or tool results.
3. Destructive actions are forbidden. Every file change and every fix command goes through a proposal tool and requires the user's explicit confirmation.
4. Use the knowledge base before reaching for a tool: seeded error analysis, cached file contents, and the project structure are already in your context.
5. One action per step. Be decisive.`

// plannerContract is the fixed closing of the system prompt.
const plannerContract = `## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"thought": "<your reasoning>", "tool_to_use": "<catalog name>", "tool_parameters": { <tool-specific> }}

Example outputs:
{"thought": "The traceback names etl.py line 42; I need to see it.", "tool_to_use": "read_file_content", "tool_parameters": {"file_path": "etl.py", "start_line": 30, "end_line": 50}}
{"thought": "The KeyError is a column typo on line 42; propose the one-line fix.", "tool_to_use": "propose_code_patch", "tool_parameters": {"file_path": "etl.py", "patch_content": [{"line_number": 42, "action": "replace", "old_content": "value = row['order-id']", "new_content": "value = row['order_id']"}], "patch_description": "Fix column name typo"}}
{"thought": "The error is gone and the script runs clean.", "tool_to_use": "finish_debugging", "tool_parameters": {"final_status": "resolved", "conclusion_message_for_user": "Fixed the column typo in etl.py; the pipeline now runs."}}`

// BuildSystemPrompt renders the fixed preamble, the tool catalog, and
// the output contract. The catalog comes from the session context so
// the planner only ever sees tools the dispatcher will accept.
func BuildSystemPrompt(descriptors []agentcontext.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString(plannerRole)
	b.WriteString("\n\n## Available Tools\n")
	for _, d := range descriptors {
		fmt.Fprintf(&b, "\n### %s\n%s\n", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			names := make([]string, 0, len(d.Parameters))
			for name := range d.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteString("Parameters:\n")
			for _, name := range names {
				fmt.Fprintf(&b, "- %s: %s\n", name, d.Parameters[name])
			}
		}
	}
	b.WriteString("\n")
	b.WriteString(plannerContract)
	return b.String()
}

// BuildUserPrompt renders the per-step prompt body: the status summary,
// the optimized context as JSON, and the step imperatives, guarded by
// the character budget.
//
// Inputs:
//   - optimized: the compacted context copy; never the session value
//   - stepNo: the step about to be taken, 1-based
//   - budget: maximum prompt length in characters; 0 disables the guard
func BuildUserPrompt(optimized *agentcontext.AgentContext, stepNo, budget int) string {
	var b strings.Builder
	writeStatusSummary(&b, optimized)

	b.WriteString("\n## Working Context (JSON)\n")
	dump, err := json.MarshalIndent(optimized, "", "  ")
	if err != nil {
		// The context is built from plain data and decoded JSON, so
		// this is unreachable.
		dump = []byte("{}")
	}
	b.Write(dump)
	b.WriteString("\n")

	writeImperatives(&b, optimized, stepNo)
	return guardPromptLength(b.String(), budget)
}

// writeStatusSummary highlights what the planner must not lose in the
// JSON dump: progress so far, the blocking error, and the file ground
// truth.
func writeStatusSummary(b *strings.Builder, opt *agentcontext.AgentContext) {
	b.WriteString("## Status Summary\n")

	if len(opt.SolvedIssues) > 0 {
		b.WriteString("Solved so far:\n")
		for _, issue := range opt.SolvedIssues {
			fmt.Fprintf(b, "- [step %d] %s: %s\n", issue.ResolutionStep, issue.Error.Type, issue.Error.Message)
		}
	}

	if cur := opt.CurrentBlockingError; cur != nil {
		b.WriteString("Current blocking error:\n")
		fmt.Fprintf(b, "- Type: %s\n", cur.Type)
		fmt.Fprintf(b, "- Message: %s\n", cur.Message)
		if len(cur.FileRefs) > 0 {
			fmt.Fprintf(b, "- Files: %s\n", strings.Join(cur.FileRefs, ", "))
		}
		if len(cur.LineRefs) > 0 {
			lines := make([]string, 0, len(cur.LineRefs))
			for _, n := range cur.LineRefs {
				lines = append(lines, fmt.Sprintf("%d", n))
			}
			fmt.Fprintf(b, "- Lines: %s\n", strings.Join(lines, ", "))
		}
	} else {
		b.WriteString("Current blocking error: none\n")
	}

	if fs := opt.FileState; fs != nil {
		if len(fs.DiscoveredFiles) > 0 {
			fmt.Fprintf(b, "Known files (%d):\n", len(fs.DiscoveredFiles))
			for _, f := range fs.DiscoveredFiles {
				fmt.Fprintf(b, "- %s\n", f)
			}
		}
		if fs.PrimaryErrorFile != "" {
			fmt.Fprintf(b, "Primary error file: %s\n", fs.PrimaryErrorFile)
		}
		if len(fs.FileMappings) > 0 {
			b.WriteString("File mappings (requested -> actual):\n")
			keys := make([]string, 0, len(fs.FileMappings))
			for k := range fs.FileMappings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(b, "- %s -> %s\n", k, fs.FileMappings[k])
			}
		}
	}

	if kb := opt.KnowledgeBase; kb != nil && kb.FileStructure != nil {
		meta := kb.FileStructure.Metadata
		fmt.Fprintf(b, "Project structure: %d files, %d relevant, %d code files",
			meta.TotalFiles, meta.RelevantFiles, meta.CodeFiles)
		if len(meta.RelevantExtensions) > 0 {
			fmt.Fprintf(b, "; extensions: %s", strings.Join(meta.RelevantExtensions, ", "))
		}
		b.WriteString("\n")
	}
}

// writeImperatives appends the step-specific directives.
func writeImperatives(b *strings.Builder, opt *agentcontext.AgentContext, stepNo int) {
	b.WriteString("\n## Your Next Step\n")
	if stepNo <= 1 {
		b.WriteString("This is step 1. Start from the failure itself: analyze initial_command_run (stdout, stderr, exit code) together with the seeded error_analysis_notes before reaching for any file.\n")
	} else {
		fmt.Fprintf(b, "This is step %d of at most %d.\n", stepNo, opt.Constraints.MaxSessionSteps)
	}
	b.WriteString("Decide the single best next action and respond with exactly one JSON object.\n")
}

// promptTruncationSuffix marks a budget cut at the end of a prompt.
const promptTruncationSuffix = "\n[... truncated ...]"

// guardPromptLength enforces the character budget. Over-budget prompts
// are cut at the last newline inside the cap when that newline sits
// past half the cap, otherwise hard-cut at the cap.
func guardPromptLength(prompt string, max int) string {
	if max <= 0 || len(prompt) <= max {
		return prompt
	}
	cut := strings.LastIndex(prompt[:max], "\n")
	if cut <= max/2 {
		cut = max
	}
	return prompt[:cut] + promptTruncationSuffix
}
