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
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/discovery"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/safety"
)

// listDirectory lists one directory. A root listing with a populated
// file state is served from the cached discovery without touching the
// filesystem.
func (d *Dispatcher) listDirectory(ctx context.Context, session *agentcontext.AgentContext, p ListDirectoryParams) *Result {
	if err := safety.CheckDirectoryPath(p.DirectoryPath); err != nil {
		return errorResult(err.Error())
	}

	rel := normalizeRel(session.WorkingDirectory, p.DirectoryPath)

	if isRootPath(rel) && len(session.FileState.DiscoveredFiles) > 0 && session.KnowledgeBase.FileStructure != nil {
		cached := session.KnowledgeBase.FileStructure
		entries := append([]agentcontext.FileEntry(nil), cached.FlatFiles...)
		return successResult(
			fmt.Sprintf("listed project root from cached discovery (%d relevant files)", len(entries)),
			map[string]any{
				"path":    ".",
				"entries": entries,
				"count":   len(entries),
				"source":  "cache",
			})
	}

	entries, err := discovery.ListDirectory(session.WorkingDirectory, rel)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(fmt.Sprintf("Directory not found: %s", displayPath(rel)))
		}
		return errorResult(fmt.Sprintf("listing %s: %v", displayPath(rel), err))
	}

	var discovered []string
	for _, e := range entries {
		if e.Type != discovery.EntryTypeFile {
			continue
		}
		discovered = append(discovered, e.Path)
	}

	res := successResult(
		fmt.Sprintf("listed %s (%d entries)", displayPath(rel), len(entries)),
		map[string]any{
			"path":    displayPath(rel),
			"entries": entries,
			"count":   len(entries),
			"source":  "disk",
		})
	res.Effects.Discovered = discovered
	return res
}

// readFile reads one file, serving from the session cache when the
// file is unchanged and was read within the last few steps.
func (d *Dispatcher) readFile(ctx context.Context, session *agentcontext.AgentContext, p ReadFileParams) *Result {
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
	if info.Size() > d.cfg.MaxReadBytes {
		return errorResult(fmt.Sprintf("file %s is %s, larger than the %s read limit",
			resolved, discovery.FormatSize(info.Size()), discovery.FormatSize(d.cfg.MaxReadBytes)))
	}

	content, source := d.cachedContent(session, resolved, info)
	if content == "" && source == "" {
		raw, readErr := os.ReadFile(abs)
		if readErr != nil {
			return errorResult(fmt.Sprintf("reading %s: %v", resolved, readErr))
		}
		content = string(raw)
		source = "disk"
	}

	body, lineCount, rangeErr := sliceLines(content, p.StartLine, p.EndLine)
	if rangeErr != nil {
		return errorResult(rangeErr.Error())
	}

	msg := fmt.Sprintf("read %s (%d lines)", resolved, lineCount)
	if p.StartLine > 0 || p.EndLine > 0 {
		msg = fmt.Sprintf("read %s lines %d-%d", resolved, effectiveStart(p.StartLine), effectiveEnd(p.EndLine, lineCount))
	}

	res := successResult(msg, map[string]any{
		"file_path":   resolved,
		"content":     body,
		"total_lines": lineCount,
		"source":      source,
	})
	if resolved != requested {
		res.Payload["resolved_from"] = requested
	}
	if source == "disk" {
		res.Effects.FileRead = &FileReadEffect{Path: resolved, Content: content}
		res.Effects.FileMeta = []agentcontext.FileMeta{{
			Path:  resolved,
			MTime: info.ModTime(),
			Size:  info.Size(),
		}}
		res.Effects.Discovered = []string{resolved}
	}
	return res
}

// cachedContent returns cached file content when it is still
// servable: read within the cache window and unchanged on disk.
// Both returns are empty when a disk read is needed.
func (d *Dispatcher) cachedContent(session *agentcontext.AgentContext, rel string, info os.FileInfo) (string, string) {
	entry, ok := session.KnowledgeBase.FilesRead[rel]
	if !ok {
		return "", ""
	}
	if entry.CachedAtStep < session.NextStepNo()-d.cfg.ReadCacheWindow {
		return "", ""
	}
	meta, ok := session.KnowledgeBase.FileMetadata[rel]
	if !ok || !meta.MTime.Equal(info.ModTime()) {
		return "", ""
	}
	return entry.Content, "cache"
}

// fileStructure returns the project tree, served from cache when the
// cached scan covers the request.
func (d *Dispatcher) fileStructure(ctx context.Context, session *agentcontext.AgentContext, p StructureParams) *Result {
	cached := session.KnowledgeBase.FileStructure
	if cached.Covers(p.MaxDepth, p.IncludeHidden) {
		return successResult(
			fmt.Sprintf("project structure from cache (%d relevant files)", cached.Metadata.RelevantFiles),
			structurePayload(cached, "cache"))
	}

	structure, err := discovery.Scan(ctx, session.WorkingDirectory, discovery.Options{
		MaxDepth:      p.MaxDepth,
		IncludeHidden: p.IncludeHidden,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("scanning project: %v", err))
	}

	var discovered []string
	for _, e := range structure.FlatFiles {
		discovered = append(discovered, e.Path)
	}

	res := successResult(
		fmt.Sprintf("scanned project structure (%d files, %d relevant)",
			structure.Metadata.TotalFiles, structure.Metadata.RelevantFiles),
		structurePayload(structure, "disk"))
	res.Effects.Structure = structure
	res.Effects.Discovered = discovered
	return res
}

// structurePayload shapes a FileStructure for the planner.
func structurePayload(fs *agentcontext.FileStructure, source string) map[string]any {
	return map[string]any{
		"tree":           fs.TreeStructure,
		"flat_files":     fs.FlatFiles,
		"total_files":    fs.Metadata.TotalFiles,
		"relevant_files": fs.Metadata.RelevantFiles,
		"code_files":     fs.Metadata.CodeFiles,
		"max_depth":      fs.MaxDepth,
		"source":         source,
	}
}

// normalizeRel turns any requested path into a clean project-relative
// path. Absolute paths under the project root are relativized;
// absolute paths outside it are kept as-is so the existence check
// fails loudly rather than silently escaping the project.
func normalizeRel(cwd, requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return ""
	}
	p := filepath.FromSlash(requested)
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// isRootPath reports whether a normalized path names the project root.
func isRootPath(rel string) bool {
	return rel == "" || rel == "." || rel == "./"
}

// displayPath renders a relative path for messages.
func displayPath(rel string) string {
	if isRootPath(rel) {
		return "."
	}
	return rel
}

// sliceLines extracts an inclusive 1-based line range. Zero bounds
// mean start or end of file. The second return is the file's total
// line count.
func sliceLines(content string, start, end int) (string, int, error) {
	if start == 0 && end == 0 {
		return content, countLines(content), nil
	}
	lines := splitLines(content)
	total := len(lines)

	s := effectiveStart(start)
	e := effectiveEnd(end, total)
	if s > total {
		return "", total, fmt.Errorf("start_line %d beyond end of file (%d lines)", s, total)
	}
	if e > total {
		e = total
	}
	return strings.Join(lines[s-1:e], "\n"), total, nil
}

func effectiveStart(start int) int {
	if start <= 0 {
		return 1
	}
	return start
}

func effectiveEnd(end, total int) int {
	if end <= 0 || end > total {
		return total
	}
	return end
}

// splitLines splits on newlines without keeping a trailing empty
// element for a final newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}

func countLines(content string) int {
	return len(splitLines(content))
}
