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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/sourcegraph/go-diff/diff"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/safety"
)

// maxSyntaxWarnings caps how many parse problems the patch payload
// carries. The check is advisory; the user decides either way.
const maxSyntaxWarnings = 10

// proposePatch converts structured line changes into a unified diff,
// shows it to the user, and applies it only on an explicit yes.
func (d *Dispatcher) proposePatch(ctx context.Context, session *agentcontext.AgentContext, p PatchParams) *Result {
	if !session.Constraints.AllowFileModifications {
		return errorResult("file modifications are disabled for this session")
	}
	if err := safety.CheckFilePath(p.FilePath); err != nil {
		return errorResult(err.Error())
	}

	requested := normalizeRel(session.WorkingDirectory, p.FilePath)
	resolved := session.FileState.Resolve(requested, func(rel string) bool {
		info, err := os.Stat(filepath.Join(session.WorkingDirectory, filepath.FromSlash(rel)))
		return err == nil && !info.IsDir()
	})

	abs := filepath.Join(session.WorkingDirectory, filepath.FromSlash(resolved))
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return errorResult(fmt.Sprintf("File not found: %s", resolved))
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return errorResult(fmt.Sprintf("reading %s: %v", resolved, err))
	}
	original := string(raw)

	modified, err := applyChanges(original, p.Changes)
	if err != nil {
		return errorResult(err.Error())
	}
	if modified == original {
		return errorResult(fmt.Sprintf("patch to %s produces no changes", resolved))
	}

	diffText, err := buildUnifiedDiff(resolved, original, modified)
	if err != nil {
		return errorResult(fmt.Sprintf("building diff for %s: %v", resolved, err))
	}

	payload := map[string]any{
		"file_path":         resolved,
		"patch_description": p.PatchDescription,
		"diff":              diffText,
		"changes":           len(p.Changes),
	}
	if added, deleted, hunks, statErr := diffStats(diffText); statErr == nil {
		payload["lines_added"] = added
		payload["lines_removed"] = deleted
		payload["hunks"] = hunks
	} else {
		d.log.Warn("could not parse generated diff", "file", resolved, "error", statErr.Error())
	}

	warnings := checkSyntax(ctx, resolved, modified)
	if len(warnings) > 0 {
		payload["syntax_warnings"] = warnings
		d.ux.DisplayBlock("Syntax check",
			fmt.Sprintf("The patched file may not parse cleanly:\n%s", strings.Join(warnings, "\n")))
	}

	confirmed, err := d.ux.ConfirmPatch(ctx, p.PatchDescription, diffText)
	if err != nil {
		return errorResult(fmt.Sprintf("confirmation failed: %v", err))
	}
	payload["user_confirmation"] = confirmed
	if !confirmed {
		payload["patch_applied"] = false
		d.log.Info("user declined patch", "file", resolved)
		return successResult("user declined the patch", payload)
	}

	if err := os.WriteFile(abs, []byte(modified), info.Mode().Perm()); err != nil {
		payload["patch_applied"] = false
		res := errorResult(fmt.Sprintf("writing %s: %v", resolved, err))
		res.Payload = payload
		return res
	}
	payload["patch_applied"] = true
	d.log.Info("patch applied", "file", resolved, "description", p.PatchDescription)

	res := successResult(fmt.Sprintf("patch applied to %s", resolved), payload)
	res.Effects.FileRead = &FileReadEffect{Path: resolved, Content: modified}
	if after, statErr := os.Stat(abs); statErr == nil {
		res.Effects.FileMeta = []agentcontext.FileMeta{{
			Path:  resolved,
			MTime: after.ModTime(),
			Size:  after.Size(),
		}}
	}
	res.Effects.Discovered = []string{resolved}
	return res
}

// applyChanges applies structured line changes to content. Changes
// are applied bottom-up so earlier line numbers stay valid; an insert
// lands before its line_number and may point one past the last line
// to append.
func applyChanges(content string, changes []PatchChange) (string, error) {
	lines := splitLines(content)
	trailingNewline := strings.HasSuffix(content, "\n") || content == ""

	ordered := append([]PatchChange(nil), changes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LineNumber > ordered[j].LineNumber
	})

	for _, ch := range ordered {
		idx := ch.LineNumber - 1
		switch ch.Action {
		case ActionReplace:
			if idx < 0 || idx >= len(lines) {
				return "", fmt.Errorf("%w: replace at line %d out of range (file has %d lines)", ErrInvalidParams, ch.LineNumber, len(lines))
			}
			repl := strings.Split(ch.NewContent, "\n")
			lines = append(lines[:idx], append(repl, lines[idx+1:]...)...)
		case ActionDelete:
			if idx < 0 || idx >= len(lines) {
				return "", fmt.Errorf("%w: delete at line %d out of range (file has %d lines)", ErrInvalidParams, ch.LineNumber, len(lines))
			}
			lines = append(lines[:idx], lines[idx+1:]...)
		case ActionInsert:
			if idx < 0 || idx > len(lines) {
				return "", fmt.Errorf("%w: insert at line %d out of range (file has %d lines)", ErrInvalidParams, ch.LineNumber, len(lines))
			}
			ins := strings.Split(ch.NewContent, "\n")
			lines = append(lines[:idx], append(ins, lines[idx:]...)...)
		default:
			return "", fmt.Errorf("%w: unknown action %q", ErrInvalidParams, ch.Action)
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline && out != "" {
		out += "\n"
	}
	return out, nil
}

// buildUnifiedDiff renders a three-line-context unified diff between
// the original and patched content.
func buildUnifiedDiff(rel, original, modified string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(modified),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// diffStats parses a unified diff back into added/removed line counts
// and the hunk count.
func diffStats(diffText string) (added, removed, hunks int, err error) {
	fd, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return 0, 0, 0, err
	}
	stat := fd.Stat()
	return int(stat.Added + stat.Changed), int(stat.Deleted + stat.Changed), len(fd.Hunks), nil
}

// checkSyntax parses the patched content with tree-sitter and returns
// human-readable warnings for error or missing nodes. Files in
// languages without a grammar return no warnings.
func checkSyntax(ctx context.Context, rel, content string) []string {
	lang := grammarFor(rel)
	if lang == nil {
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return []string{fmt.Sprintf("parse failed: %v", err)}
	}
	defer tree.Close()

	var warnings []string
	collectParseIssues(tree.RootNode(), []byte(content), &warnings, 0)
	return warnings
}

// grammarFor maps a file extension to its tree-sitter grammar, nil
// when unsupported.
func grammarFor(rel string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js", ".jsx":
		return javascript.GetLanguage()
	case ".ts", ".tsx":
		return typescript.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	case ".sh", ".bash":
		return bash.GetLanguage()
	default:
		return nil
	}
}

// collectParseIssues walks the syntax tree for ERROR and MISSING
// nodes. Depth and count guards keep heavily malformed input cheap.
func collectParseIssues(node *sitter.Node, content []byte, warnings *[]string, depth int) {
	if depth > 1000 || len(*warnings) >= maxSyntaxWarnings {
		return
	}

	if node.IsError() || node.IsMissing() {
		point := node.StartPoint()
		if node.IsMissing() {
			*warnings = append(*warnings, fmt.Sprintf("line %d:%d missing %s", point.Row+1, point.Column, node.Type()))
		} else {
			start, end := node.StartByte(), node.EndByte()
			if end > uint32(len(content)) {
				end = uint32(len(content))
			}
			snippet := ""
			if end > start && end-start < 60 {
				snippet = strings.TrimSpace(string(content[start:end]))
			}
			if snippet != "" {
				*warnings = append(*warnings, fmt.Sprintf("line %d:%d unexpected %q", point.Row+1, point.Column, snippet))
			} else {
				*warnings = append(*warnings, fmt.Sprintf("line %d:%d syntax error", point.Row+1, point.Column))
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectParseIssues(node.Child(i), content, warnings, depth+1)
	}
}
