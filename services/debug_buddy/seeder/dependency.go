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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/evolution"
)

// Manifest ecosystems.
const (
	KindGo     = "go"
	KindNode   = "node"
	KindPython = "python"
)

// maxNoteEntries caps how many dependencies one manifest contributes to
// the inventory note.
const maxNoteEntries = 10

// Manifest is one parsed dependency manifest at the project root.
type Manifest struct {
	// Path is the manifest filename relative to the project root.
	Path string

	// Kind is the ecosystem the manifest belongs to.
	Kind string

	// Entries lists the declared dependencies, one per element.
	Entries []string

	// ParseNote is set instead of Entries when the manifest exists but
	// could not be parsed.
	ParseNote string
}

// Inventory is the set of manifests found at a project root.
type Inventory struct {
	Manifests []Manifest
}

// Empty reports whether no manifest was found.
func (inv Inventory) Empty() bool {
	return len(inv.Manifests) == 0
}

// Note renders the inventory as one planner-readable note: a summary
// line plus one capped dependency line per manifest.
func (inv Inventory) Note() string {
	summary := make([]string, 0, len(inv.Manifests))
	lines := make([]string, 0, len(inv.Manifests))
	for _, m := range inv.Manifests {
		if m.ParseNote != "" {
			summary = append(summary, m.Path+" (unparseable)")
			lines = append(lines, m.Path+": "+m.ParseNote)
			continue
		}
		count := fmt.Sprintf("%d", len(m.Entries))
		if m.Kind == KindGo {
			count += " direct"
		}
		summary = append(summary, fmt.Sprintf("%s (%s)", m.Path, count))

		entries := m.Entries
		var more string
		if len(entries) > maxNoteEntries {
			more = fmt.Sprintf(" (+%d more)", len(entries)-maxNoteEntries)
			entries = entries[:maxNoteEntries]
		}
		lines = append(lines, m.Path+": "+strings.Join(entries, ", ")+more)
	}
	return "dependency manifests: " + strings.Join(summary, ", ") + "\n" + strings.Join(lines, "\n")
}

// CollectInventory parses the dependency manifests present at the
// project root. Missing manifests are skipped; malformed ones appear in
// the inventory with a parse note so the planner still learns the file
// exists.
func CollectInventory(root string) Inventory {
	var inv Inventory

	collect := func(name, kind string, parse func([]byte) ([]string, error)) {
		path := filepath.Join(root, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return
		}
		entries, err := parse(content)
		if err != nil {
			inv.Manifests = append(inv.Manifests, Manifest{
				Path: name, Kind: kind, ParseNote: "unparseable: " + err.Error(),
			})
			return
		}
		inv.Manifests = append(inv.Manifests, Manifest{Path: name, Kind: kind, Entries: entries})
	}

	collect("go.mod", KindGo, parseGoMod)
	collect("package.json", KindNode, parsePackageJSON)
	collect("requirements.txt", KindPython, parseRequirements)
	return inv
}

// parseGoMod extracts the direct requirements from a go.mod file.
func parseGoMod(content []byte) ([]string, error) {
	f, err := modfile.Parse("go.mod", content, nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}
	var entries []string
	for _, req := range f.Require {
		if req.Indirect {
			continue
		}
		entries = append(entries, req.Mod.Path+" "+req.Mod.Version)
	}
	return entries, nil
}

// parsePackageJSON extracts dependencies and devDependencies, regular
// deps first, each group sorted by name.
func parsePackageJSON(content []byte) ([]string, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}

	group := func(deps map[string]string, suffix string) []string {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]string, 0, len(names))
		for _, name := range names {
			entries = append(entries, name+"@"+deps[name]+suffix)
		}
		return entries
	}
	return append(group(pkg.Dependencies, ""), group(pkg.DevDependencies, " (dev)")...), nil
}

// parseRequirements extracts requirement lines from a pip
// requirements.txt, dropping comments, blank lines, pip flags, and
// environment markers.
func parseRequirements(content []byte) ([]string, error) {
	var entries []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.IndexAny(line, ";#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// dependencyInventory inventories the project's manifests when the
// blocking error looks module or import shaped. Other error types do
// not earn the note; the planner can still list the manifest files
// itself.
func (s *Seeder) dependencyInventory(sctx *agentcontext.AgentContext) {
	rec := sctx.CurrentBlockingError
	if rec == nil || !moduleRelated(rec) {
		return
	}
	inv := CollectInventory(sctx.WorkingDirectory)
	if inv.Empty() {
		sctx.KnowledgeBase.AddNote(agentcontext.NoteDependencyInventory,
			"no dependency manifest (go.mod, package.json, requirements.txt) found at the project root", 0)
		return
	}
	sctx.KnowledgeBase.AddNote(agentcontext.NoteDependencyInventory, inv.Note(), 0)
}

// moduleRelated reports whether the record points at a missing or
// broken dependency rather than a code defect.
func moduleRelated(rec *agentcontext.ErrorRecord) bool {
	switch rec.Type {
	case evolution.TypeModuleNotFound, evolution.TypeImportError:
		return true
	}
	msg := strings.ToLower(rec.Message)
	return strings.Contains(msg, "cannot find module") || strings.Contains(msg, "module not found")
}
