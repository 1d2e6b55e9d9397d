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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
)

// pathParams are the parameter keys normalized before signing, so that
// "./etl.py", "etl.py", and an absolute path under the working
// directory all produce the same action signature.
var pathParams = map[string]bool{
	"file_path":      true,
	"directory_path": true,
}

// Signature produces the canonical identity of an action for
// deduplication. Equal tool plus equal normalized parameters means
// equal signature; JSON encoding sorts map keys at every level, so the
// result is deterministic regardless of parameter order.
func Signature(tool tools.ToolName, params map[string]any, workingDir string) string {
	canonical := make(map[string]any, len(params))
	for key, value := range params {
		if pathParams[key] {
			if s, ok := value.(string); ok {
				canonical[key] = normalizePath(s, workingDir)
				continue
			}
		}
		canonical[key] = value
	}
	body, err := json.Marshal(canonical)
	if err != nil {
		// Parameters came out of a json.Unmarshal, so this is
		// unreachable; fall back to the tool name alone.
		return string(tool) + ":{}"
	}
	return string(tool) + ":" + string(body)
}

// normalizePath rewrites a planner-supplied path into its cleaned form
// relative to the working directory when it points inside it.
func normalizePath(path, workingDir string) string {
	cleaned := filepath.Clean(strings.TrimSpace(path))
	if filepath.IsAbs(cleaned) && workingDir != "" {
		if rel, err := filepath.Rel(workingDir, cleaned); err == nil && !strings.HasPrefix(rel, "..") {
			cleaned = rel
		}
	}
	return cleaned
}
