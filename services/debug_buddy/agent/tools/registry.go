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
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// Descriptors returns the planner-facing catalog: name, description,
// and parameter schema for every tool, in prompt order. The planner
// prompt embeds this verbatim; the validator rejects anything not
// listed here.
func Descriptors() []agentcontext.ToolDescriptor {
	return []agentcontext.ToolDescriptor{
		{
			Name: string(ToolListDirectory),
			Description: "List files and subdirectories of a directory inside the project. " +
				"Use a real path from the session context, never a placeholder.",
			Parameters: map[string]string{
				"directory_path": "optional string; project-relative directory, defaults to the project root",
			},
		},
		{
			Name: string(ToolReadFile),
			Description: "Read the content of a project file, optionally a line range. " +
				"Prefer files named in the error output or already discovered.",
			Parameters: map[string]string{
				"file_path":  "required string; project-relative path of the file to read",
				"start_line": "optional integer; first line to read, 1-based",
				"end_line":   "optional integer; last line to read, 1-based",
			},
		},
		{
			Name: string(ToolRunDiagnostic),
			Description: "Run a safe, read-only shell command to gather evidence, for example " +
				"re-running the failing command, python --version, or pip list. " +
				"Destructive commands are blocked.",
			Parameters: map[string]string{
				"command_string": "required string; the exact shell command to run",
			},
		},
		{
			Name: string(ToolSearchFiles),
			Description: "Search project files for a pattern and return matching lines " +
				"with file paths and line numbers.",
			Parameters: map[string]string{
				"search_pattern":  "required string; literal text or regular expression to find",
				"file_extensions": "optional list of strings; restrict the search to these extensions",
				"max_results":     "optional integer; maximum matches to return, default 10",
			},
		},
		{
			Name: string(ToolFileStructure),
			Description: "Get a tree view of the project layout with file metadata, " +
				"filtered to files relevant for debugging.",
			Parameters: map[string]string{
				"max_depth":      "optional integer; directory depth to walk, default 3",
				"include_hidden": "optional boolean; include dotfiles, default false",
			},
		},
		{
			Name: string(ToolProposePatch),
			Description: "Propose a concrete code change to one file. The user sees a unified " +
				"diff and must approve before anything is written.",
			Parameters: map[string]string{
				"file_path": "required string; project-relative path of the file to patch",
				"patch_content": "required list of change objects, each with line_number, " +
					"action (replace, delete, insert), old_content, new_content",
				"patch_description": "required string; one sentence explaining the fix",
			},
		},
		{
			Name: string(ToolProposeCommand),
			Description: "Propose a shell command that fixes the problem, for example " +
				"pip install for a missing module. The user must approve before it runs.",
			Parameters: map[string]string{
				"command_to_propose":  "required string; the exact command to run on approval",
				"command_description": "required string; one sentence explaining what it fixes",
			},
		},
		{
			Name: string(ToolAskUser),
			Description: "Ask the user one specific question when the investigation cannot " +
				"proceed without information only they have.",
			Parameters: map[string]string{
				"question_for_user": "required string; the question to show the user",
			},
		},
		{
			Name: string(ToolFinish),
			Description: "End the session with a conclusion for the user. Use resolved only " +
				"after a fix was applied and verified.",
			Parameters: map[string]string{
				"conclusion_message_for_user": "required string; summary of the outcome and any remaining steps",
				"final_status": "required string; one of resolved, guidance_provided, " +
					"cannot_resolve, aborted_by_user_request",
			},
		},
	}
}
