// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package context

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Knowledge Base
// =============================================================================

// KnowledgeBase holds everything the agent has learned about the
// project during the session: file contents, structure, search
// results, and analysis notes. All caches are scoped to the session;
// nothing here is process-global.
type KnowledgeBase struct {
	// FilesRead maps project-relative path to cached content.
	FilesRead map[string]FileReadEntry `json:"files_read"`

	// FileStructure is the cached directory scan, nil until seeded.
	FileStructure *FileStructure `json:"file_structure,omitempty"`

	// SearchResults maps a cache key (pattern:extensions:max_results)
	// to a cached search.
	SearchResults map[string]SearchCacheEntry `json:"search_results"`

	// FileMetadata tracks per-path stat snapshots used for cache
	// freshness checks.
	FileMetadata map[string]FileMeta `json:"file_metadata"`

	// ErrorAnalysisNotes is a bounded list of typed notes written by
	// seeding and by later analysis.
	ErrorAnalysisNotes []AnalysisNote `json:"error_analysis_notes"`
}

// NewKnowledgeBase returns an empty knowledge base with initialized maps.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		FilesRead:     make(map[string]FileReadEntry),
		SearchResults: make(map[string]SearchCacheEntry),
		FileMetadata:  make(map[string]FileMeta),
	}
}

// Clone returns a deep copy.
func (kb *KnowledgeBase) Clone() *KnowledgeBase {
	if kb == nil {
		return nil
	}
	cp := NewKnowledgeBase()
	for k, v := range kb.FilesRead {
		cp.FilesRead[k] = v
	}
	for k, v := range kb.SearchResults {
		entry := v
		entry.Results = append([]SearchMatch(nil), v.Results...)
		entry.SearchedFilesMetadata = append([]FileMeta(nil), v.SearchedFilesMetadata...)
		cp.SearchResults[k] = entry
	}
	for k, v := range kb.FileMetadata {
		cp.FileMetadata[k] = v
	}
	cp.ErrorAnalysisNotes = append([]AnalysisNote(nil), kb.ErrorAnalysisNotes...)
	cp.FileStructure = kb.FileStructure.Clone()
	return cp
}

// AddNote appends a typed analysis note.
func (kb *KnowledgeBase) AddNote(kind, text string, step int) {
	kb.ErrorAnalysisNotes = append(kb.ErrorAnalysisNotes, AnalysisNote{
		Kind:      kind,
		Text:      text,
		Step:      step,
		CreatedAt: time.Now(),
	})
}

// RecordFileMetadata stores a stat snapshot for freshness checks.
func (kb *KnowledgeBase) RecordFileMetadata(path string, mtime time.Time, size int64) {
	kb.FileMetadata[path] = FileMeta{
		Path:        path,
		MTime:       mtime,
		Size:        size,
		LastChecked: time.Now(),
	}
}

// =============================================================================
// File Reads
// =============================================================================

// FileReadEntry is cached file content plus the step it was read at,
// used for the short read-reuse window.
type FileReadEntry struct {
	Content      string `json:"content"`
	CachedAtStep int    `json:"cached_at_step"`
}

// FileMeta is a stat snapshot for one path.
type FileMeta struct {
	Path        string    `json:"path"`
	MTime       time.Time `json:"mtime"`
	Size        int64     `json:"size"`
	LastChecked time.Time `json:"last_checked"`
}

// =============================================================================
// File Structure
// =============================================================================

// FileEntry is one observed filesystem entry.
type FileEntry struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // "file" or "directory"
	IsHidden      bool   `json:"isHidden"`
	Path          string `json:"path"`
	SizeBytes     int64  `json:"size_bytes"`
	SizeFormatted string `json:"size_formatted"`
	Extension     string `json:"extension,omitempty"`
	IsCodeFile    bool   `json:"is_code_file"`
	Depth         int    `json:"depth"`
}

// StructureMetadata summarizes a directory scan.
type StructureMetadata struct {
	TotalFiles         int      `json:"total_files"`
	RelevantFiles      int      `json:"relevant_files"`
	CodeFiles          int      `json:"code_files"`
	RelevantExtensions []string `json:"relevant_extensions"`
	ProjectRoot        string   `json:"project_root"`
}

// FileStructure is the cached project scan.
type FileStructure struct {
	TreeStructure  string            `json:"tree_structure"`
	FlatFiles      []FileEntry       `json:"flat_files"`
	Metadata       StructureMetadata `json:"metadata"`
	MaxDepth       int               `json:"max_depth"`
	IncludedHidden bool              `json:"included_hidden"`
	CachedAt       time.Time         `json:"cached_at"`
}

// Clone returns a deep copy.
func (fs *FileStructure) Clone() *FileStructure {
	if fs == nil {
		return nil
	}
	cp := *fs
	cp.FlatFiles = append([]FileEntry(nil), fs.FlatFiles...)
	cp.Metadata.RelevantExtensions = append([]string(nil), fs.Metadata.RelevantExtensions...)
	return &cp
}

// Covers reports whether this cached structure can serve a request for
// the given depth and hidden-file setting without a rescan.
func (fs *FileStructure) Covers(maxDepth int, includeHidden bool) bool {
	if fs == nil {
		return false
	}
	if fs.MaxDepth < maxDepth {
		return false
	}
	// A scan that included hidden files covers both settings; one that
	// excluded them cannot serve a hidden-inclusive request.
	if includeHidden && !fs.IncludedHidden {
		return false
	}
	return true
}

// =============================================================================
// Search Cache
// =============================================================================

// SearchMatch is one line-level search hit.
type SearchMatch struct {
	Path       string `json:"path"`
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
}

// SearchCacheEntry is one cached codebase search.
type SearchCacheEntry struct {
	Results               []SearchMatch `json:"results"`
	FilesSearched         int           `json:"files_searched"`
	SearchedFilesMetadata []FileMeta    `json:"searched_files_metadata"`
	Timestamp             time.Time     `json:"timestamp"`
}

// searchCacheSampleSize is how many searched files get their mtimes
// re-checked on a cache hit.
const searchCacheSampleSize = 5

// SearchCacheKey builds the canonical cache key for a search:
// pattern, sorted extensions, and the result cap.
func SearchCacheKey(pattern string, extensions []string, maxResults int) string {
	exts := append([]string(nil), extensions...)
	sort.Strings(exts)
	return fmt.Sprintf("%s:%s:%d", pattern, strings.Join(exts, ","), maxResults)
}

// StatFunc looks up the current mtime and size for a path. The second
// return is false when the path no longer exists.
type StatFunc func(path string) (mtime time.Time, size int64, ok bool)

// Fresh reports whether the cached search can be served.
//
// Two conditions must both hold: the entry is younger than ttl, and
// the mtimes of up to the first five searched files are unchanged.
// A vanished or modified sampled file invalidates the entry.
func (e SearchCacheEntry) Fresh(now time.Time, ttl time.Duration, stat StatFunc) bool {
	if now.Sub(e.Timestamp) >= ttl {
		return false
	}
	sample := e.SearchedFilesMetadata
	if len(sample) > searchCacheSampleSize {
		sample = sample[:searchCacheSampleSize]
	}
	for _, meta := range sample {
		mtime, _, ok := stat(meta.Path)
		if !ok || !mtime.Equal(meta.MTime) {
			return false
		}
	}
	return true
}

// =============================================================================
// Analysis Notes
// =============================================================================

// Analysis note kinds. Seeding writes the first four; the optimizer
// merges an overgrown list under NoteConsolidated.
const (
	NoteInitialAnalysis     = "initial_analysis"
	NoteTracebackFiles      = "traceback_files"
	NoteDependencyInventory = "dependency_inventory"
	NoteRetrievalHint       = "retrieval_hint"
	NoteConsolidated        = "consolidated"
)

// AnalysisNote is one typed note record in the knowledge base.
type AnalysisNote struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`
}
