// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// CodeExtensions are extensions (without dot) treated as source code.
var CodeExtensions = map[string]bool{
	"py": true, "js": true, "ts": true, "jsx": true, "tsx": true,
	"java": true, "cpp": true, "c": true, "rb": true, "go": true,
	"rs": true, "php": true, "swift": true, "kt": true, "cs": true,
}

// ConfigExtensions are extensions (without dot) treated as
// configuration.
var ConfigExtensions = map[string]bool{
	"yaml": true, "yml": true, "env": true, "toml": true,
	"ini": true, "cfg": true, "conf": true,
}

// specialNameFragments mark build and dependency manifests by name.
var specialNameFragments = []string{"requirements", "dockerfile", "makefile"}

// Size ceilings for the catch-all rules.
const (
	maxRelevantDotfileBytes  = 5000
	maxRelevantRootFileBytes = 1000
)

// Relevant reports whether a file belongs in the flat debugging view.
//
// Kept: source code, the root package.json and any package-lock.json,
// configuration files, root-level markdown, dependency manifests,
// small dotfiles, and any small root-level file. Directories are
// never relevant; they appear only in the tree render.
func Relevant(e agentcontext.FileEntry) bool {
	if e.Type != EntryTypeFile {
		return false
	}
	name := strings.ToLower(e.Name)
	ext := strings.ToLower(e.Extension)

	if CodeExtensions[ext] {
		return true
	}
	if name == "package.json" && e.Depth <= 1 {
		return true
	}
	if name == "package-lock.json" {
		return true
	}
	if ConfigExtensions[ext] {
		return true
	}
	if ext == "md" && e.Depth <= 1 {
		return true
	}
	for _, frag := range specialNameFragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	if e.IsHidden && e.SizeBytes < maxRelevantDotfileBytes {
		return true
	}
	if e.Depth <= 1 && e.SizeBytes < maxRelevantRootFileBytes {
		return true
	}
	return false
}
