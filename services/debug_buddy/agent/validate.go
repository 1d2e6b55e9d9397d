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

	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/llm"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/safety"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
)

// Decision is one validated planner action.
type Decision struct {
	// Thought is the planner's stated reasoning, recorded with the step.
	Thought string

	// Tool is the catalog tool to dispatch.
	Tool tools.ToolName

	// Params is the loose parameter object. Never nil after parsing;
	// a planner that omits tool_parameters means "no parameters".
	Params map[string]any
}

// decisionWire is the planner's JSON shape.
type decisionWire struct {
	Thought        string         `json:"thought"`
	ToolToUse      string         `json:"tool_to_use"`
	ToolParameters map[string]any `json:"tool_parameters"`
}

// ParseDecision extracts and validates one planner decision from raw
// model output.
//
// Inputs:
//   - content: the full completion text, possibly with prose or fences
//     around the JSON object
//
// Outputs:
//   - *Decision: the validated decision, or on a validation failure the
//     partial decision (so the caller can record the attempted tool)
//   - error: nil; or wraps ErrPlanner when no JSON object could be
//     extracted; or wraps ErrValidation when the object fails the
//     schema, names an unknown tool, or carries a placeholder path
func ParseDecision(content string) (*Decision, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanner, err)
	}

	var wire decisionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decision shape: %v", ErrValidation, err)
	}

	decision := &Decision{
		Thought: wire.Thought,
		Tool:    tools.ToolName(wire.ToolToUse),
		Params:  wire.ToolParameters,
	}
	if decision.Params == nil {
		decision.Params = map[string]any{}
	}

	if wire.Thought == "" {
		return decision, fmt.Errorf("%w: missing thought", ErrValidation)
	}
	if wire.ToolToUse == "" {
		return decision, fmt.Errorf("%w: missing tool_to_use", ErrValidation)
	}
	if !decision.Tool.Valid() {
		return decision, fmt.Errorf("%w: unknown tool %q", ErrValidation, wire.ToolToUse)
	}
	if err := checkPlaceholders(decision); err != nil {
		return decision, err
	}
	return decision, nil
}

// checkPlaceholders applies the planning-time placeholder rules. The
// same safety helpers run again inside the tools, so a path that slips
// past validation still cannot reach the filesystem.
func checkPlaceholders(d *Decision) error {
	switch d.Tool {
	case tools.ToolReadFile:
		if path, ok := d.Params["file_path"].(string); ok {
			if err := safety.CheckFilePath(path); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	case tools.ToolListDirectory:
		if path, ok := d.Params["directory_path"].(string); ok {
			if err := safety.CheckDirectoryPath(path); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	}
	return nil
}
