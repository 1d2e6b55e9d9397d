// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery scans a project directory into the structure
// snapshot the agent reasons over: a rendered tree, a flat list of
// debugging-relevant files, and per-scan metadata.
//
// # Description
//
// The same scanner backs session seeding, get_file_structure, and
// list_directory_contents, so every consumer sees one notion of depth
// (path components below the project root, a root-level file is depth
// one) and one relevance filter. Dependency directories such as
// node_modules and .git are never walked, even when hidden files are
// requested.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// DefaultMaxDepth is the scan depth used by seeding and by
// get_file_structure when the planner gives none.
const DefaultMaxDepth = 3

// SkippedDirs are directories never worth walking regardless of the
// hidden-file setting.
var SkippedDirs = []string{
	".git",
	"node_modules",
	"vendor",
	"__pycache__",
	".venv",
	"venv",
	".idea",
	".vscode",
	"dist",
	"build",
	".next",
	"target",
	".pytest_cache",
	".mypy_cache",
}

// Options control a project scan.
type Options struct {
	// MaxDepth is the deepest path depth to include; zero means
	// DefaultMaxDepth.
	MaxDepth int

	// IncludeHidden keeps dotfiles and dot-directories in the scan.
	IncludeHidden bool
}

// Scan walks the project rooted at root and returns a structure
// snapshot. The tree render includes every walked entry; the flat
// list keeps only files that pass the relevance filter.
func Scan(ctx context.Context, root string, opts Options) (*agentcontext.FileStructure, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %q is not a directory", root)
	}

	var tree strings.Builder
	tree.WriteString(filepath.Base(root))
	tree.WriteString("\n")

	var entries []agentcontext.FileEntry
	if err := scanDir(ctx, root, "", "", 1, opts, &tree, &entries); err != nil {
		return nil, err
	}

	var flat []agentcontext.FileEntry
	extSet := make(map[string]struct{})
	totalFiles := 0
	codeFiles := 0
	for _, e := range entries {
		if e.Type != EntryTypeFile {
			continue
		}
		totalFiles++
		if e.IsCodeFile {
			codeFiles++
		}
		if Relevant(e) {
			flat = append(flat, e)
			if e.Extension != "" {
				extSet[e.Extension] = struct{}{}
			}
		}
	}

	exts := make([]string, 0, len(extSet))
	for ext := range extSet {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	return &agentcontext.FileStructure{
		TreeStructure: tree.String(),
		FlatFiles:     flat,
		Metadata: agentcontext.StructureMetadata{
			TotalFiles:         totalFiles,
			RelevantFiles:      len(flat),
			CodeFiles:          codeFiles,
			RelevantExtensions: exts,
			ProjectRoot:        root,
		},
		MaxDepth:       opts.MaxDepth,
		IncludedHidden: opts.IncludeHidden,
		CachedAt:       time.Now(),
	}, nil
}

// scanDir reads one directory level, appends tree lines and entries,
// and recurses while depth allows. depth is the depth assigned to the
// entries of this directory.
func scanDir(ctx context.Context, absDir, relDir, prefix string, depth int, opts Options, tree *strings.Builder, out *[]agentcontext.FileEntry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if depth > opts.MaxDepth {
		return nil
	}

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		// Permission problems on a subtree should not kill the scan.
		if relDir != "" {
			return nil
		}
		return fmt.Errorf("reading directory %q: %w", absDir, err)
	}

	filtered := filterEntries(dirEntries, opts.IncludeHidden)

	for i, de := range filtered {
		isLast := i == len(filtered)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if isLast {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		rel := de.Name()
		if relDir != "" {
			rel = relDir + "/" + de.Name()
		}

		entry, ok := buildEntry(de, rel, depth)
		if ok {
			*out = append(*out, entry)
		}

		tree.WriteString(prefix)
		tree.WriteString(connector)
		tree.WriteString(de.Name())
		if de.IsDir() {
			tree.WriteString("/")
		} else if ok && entry.SizeFormatted != "" {
			tree.WriteString(" (")
			tree.WriteString(entry.SizeFormatted)
			tree.WriteString(")")
		}
		tree.WriteString("\n")

		if de.IsDir() {
			if err := scanDir(ctx, filepath.Join(absDir, de.Name()), rel, childPrefix, depth+1, opts, tree, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// filterEntries drops hidden entries when not requested, always drops
// the skip-list directories, and sorts directories first then by name.
func filterEntries(dirEntries []os.DirEntry, includeHidden bool) []os.DirEntry {
	skip := make(map[string]bool, len(SkippedDirs))
	for _, s := range SkippedDirs {
		skip[s] = true
	}

	var filtered []os.DirEntry
	for _, de := range dirEntries {
		name := de.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if de.IsDir() && skip[name] {
			continue
		}
		filtered = append(filtered, de)
	}

	sort.Slice(filtered, func(i, j int) bool {
		iDir := filtered[i].IsDir()
		jDir := filtered[j].IsDir()
		if iDir != jDir {
			return iDir
		}
		return filtered[i].Name() < filtered[j].Name()
	})
	return filtered
}

// buildEntry converts one directory entry into a FileEntry. The bool
// is false when the entry could not be stat'd.
func buildEntry(de os.DirEntry, rel string, depth int) (agentcontext.FileEntry, bool) {
	info, err := de.Info()
	if err != nil {
		return agentcontext.FileEntry{}, false
	}
	return NewFileEntry(de.Name(), rel, depth, de.IsDir(), info.Size()), true
}

// Entry type labels.
const (
	EntryTypeFile      = "file"
	EntryTypeDirectory = "directory"
)

// NewFileEntry assembles a FileEntry with derived fields populated.
func NewFileEntry(name, rel string, depth int, isDir bool, size int64) agentcontext.FileEntry {
	entryType := EntryTypeFile
	ext := ""
	isCode := false
	sizeFormatted := FormatSize(size)
	if isDir {
		entryType = EntryTypeDirectory
		sizeFormatted = ""
		size = 0
	} else {
		ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		isCode = CodeExtensions[ext]
	}
	return agentcontext.FileEntry{
		Name:          name,
		Type:          entryType,
		IsHidden:      strings.HasPrefix(name, "."),
		Path:          rel,
		SizeBytes:     size,
		SizeFormatted: sizeFormatted,
		Extension:     ext,
		IsCodeFile:    isCode,
		Depth:         depth,
	}
}

// ListDirectory returns the immediate entries of one directory below
// root. Hidden entries are included and flagged; skip-list
// directories are omitted. rel may be empty for the root itself.
func ListDirectory(root, rel string) ([]agentcontext.FileEntry, error) {
	abs := root
	if rel != "" && rel != "." {
		abs = filepath.Join(root, rel)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	filtered := filterEntries(dirEntries, true)

	depth := DepthOf(rel) + 1
	entries := make([]agentcontext.FileEntry, 0, len(filtered))
	for _, de := range filtered {
		childRel := de.Name()
		if rel != "" && rel != "." {
			childRel = strings.TrimSuffix(rel, "/") + "/" + de.Name()
		}
		if entry, ok := buildEntry(de, childRel, depth); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// WalkFiles calls fn for every regular file within maxDepth of root,
// honoring the hidden and skip rules. fn receives the project-relative
// path and the file info; returning fs.SkipAll stops the walk early.
func WalkFiles(ctx context.Context, root string, maxDepth int, includeHidden bool, fn func(rel string, info fs.FileInfo) error) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	skip := make(map[string]bool, len(SkippedDirs))
	for _, s := range SkippedDirs {
		skip[s] = true
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // skip unreadable subtrees
		}
		if path == root {
			return nil
		}

		name := d.Name()
		hidden := strings.HasPrefix(name, ".")

		if d.IsDir() {
			if skip[name] || (!includeHidden && hidden) {
				return filepath.SkipDir
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil && DepthOf(rel) >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !includeHidden && hidden {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if DepthOf(rel) > maxDepth {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		return fn(rel, info)
	})
}

// DepthOf counts the path components of a project-relative path. The
// empty path and "." are depth zero; a root-level file is depth one.
func DepthOf(rel string) int {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

// FormatSize renders a byte count for humans.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(size)/float64(div), "KMGTPE"[exp])
}
