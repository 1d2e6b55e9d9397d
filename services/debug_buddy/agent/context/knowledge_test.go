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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Search Cache Key
// =============================================================================

func TestSearchCacheKey(t *testing.T) {
	t.Run("extensions are sorted", func(t *testing.T) {
		a := SearchCacheKey("KeyError", []string{".py", ".go"}, 10)
		b := SearchCacheKey("KeyError", []string{".go", ".py"}, 10)
		assert.Equal(t, a, b)
		assert.Equal(t, "KeyError:.go,.py:10", a)
	})

	t.Run("no extensions", func(t *testing.T) {
		assert.Equal(t, "load_config::25", SearchCacheKey("load_config", nil, 25))
	})

	t.Run("input slice is not reordered", func(t *testing.T) {
		exts := []string{".py", ".go"}
		SearchCacheKey("x", exts, 1)
		assert.Equal(t, []string{".py", ".go"}, exts)
	})

	t.Run("max results distinguishes keys", func(t *testing.T) {
		assert.NotEqual(t,
			SearchCacheKey("x", nil, 10),
			SearchCacheKey("x", nil, 20),
		)
	})
}

// =============================================================================
// Search Cache Freshness
// =============================================================================

func TestSearchCacheEntry_Fresh(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	meta := func(path string, mtime time.Time) FileMeta {
		return FileMeta{Path: path, MTime: mtime, Size: 100}
	}

	unchanged := func(mtimes map[string]time.Time) StatFunc {
		return func(path string) (time.Time, int64, bool) {
			mt, ok := mtimes[path]
			return mt, 100, ok
		}
	}

	t.Run("young entry with unchanged files", func(t *testing.T) {
		entry := SearchCacheEntry{
			Timestamp:             base,
			SearchedFilesMetadata: []FileMeta{meta("a.py", base), meta("b.py", base)},
		}
		stat := unchanged(map[string]time.Time{"a.py": base, "b.py": base})
		assert.True(t, entry.Fresh(base.Add(time.Minute), 5*time.Minute, stat))
	})

	t.Run("expired by age", func(t *testing.T) {
		entry := SearchCacheEntry{Timestamp: base}
		stat := unchanged(nil)
		assert.False(t, entry.Fresh(base.Add(5*time.Minute), 5*time.Minute, stat))
	})

	t.Run("modified sampled file invalidates", func(t *testing.T) {
		entry := SearchCacheEntry{
			Timestamp:             base,
			SearchedFilesMetadata: []FileMeta{meta("a.py", base)},
		}
		stat := unchanged(map[string]time.Time{"a.py": base.Add(time.Second)})
		assert.False(t, entry.Fresh(base.Add(time.Minute), 5*time.Minute, stat))
	})

	t.Run("vanished sampled file invalidates", func(t *testing.T) {
		entry := SearchCacheEntry{
			Timestamp:             base,
			SearchedFilesMetadata: []FileMeta{meta("gone.py", base)},
		}
		stat := unchanged(map[string]time.Time{})
		assert.False(t, entry.Fresh(base.Add(time.Minute), 5*time.Minute, stat))
	})

	t.Run("only first five files are sampled", func(t *testing.T) {
		metas := []FileMeta{
			meta("f1.py", base), meta("f2.py", base), meta("f3.py", base),
			meta("f4.py", base), meta("f5.py", base),
			// Changed, but past the sample size.
			meta("f6.py", base),
		}
		entry := SearchCacheEntry{Timestamp: base, SearchedFilesMetadata: metas}
		stat := unchanged(map[string]time.Time{
			"f1.py": base, "f2.py": base, "f3.py": base,
			"f4.py": base, "f5.py": base,
			"f6.py": base.Add(time.Hour),
		})
		assert.True(t, entry.Fresh(base.Add(time.Minute), 5*time.Minute, stat))
	})

	t.Run("no metadata means age check only", func(t *testing.T) {
		entry := SearchCacheEntry{Timestamp: base}
		stat := unchanged(nil)
		assert.True(t, entry.Fresh(base.Add(time.Minute), 5*time.Minute, stat))
	})
}

// =============================================================================
// File Structure Coverage
// =============================================================================

func TestFileStructure_Covers(t *testing.T) {
	cached := &FileStructure{MaxDepth: 3, IncludedHidden: false}

	t.Run("same depth", func(t *testing.T) {
		assert.True(t, cached.Covers(3, false))
	})

	t.Run("shallower request", func(t *testing.T) {
		assert.True(t, cached.Covers(2, false))
	})

	t.Run("deeper request misses", func(t *testing.T) {
		assert.False(t, cached.Covers(4, false))
	})

	t.Run("hidden-inclusive request misses non-hidden scan", func(t *testing.T) {
		assert.False(t, cached.Covers(3, true))
	})

	t.Run("hidden scan covers both settings", func(t *testing.T) {
		hidden := &FileStructure{MaxDepth: 3, IncludedHidden: true}
		assert.True(t, hidden.Covers(3, true))
		assert.True(t, hidden.Covers(3, false))
	})

	t.Run("nil never covers", func(t *testing.T) {
		var fs *FileStructure
		assert.False(t, fs.Covers(1, false))
	})
}

func TestFileStructure_Clone(t *testing.T) {
	orig := &FileStructure{
		TreeStructure: "proj/\n  etl.py",
		FlatFiles:     []FileEntry{{Name: "etl.py", Type: "file", Path: "etl.py", Depth: 1}},
		Metadata:      StructureMetadata{TotalFiles: 1, RelevantExtensions: []string{".py"}},
		MaxDepth:      3,
	}

	cp := orig.Clone()
	cp.FlatFiles[0].Name = "mutated.py"
	cp.Metadata.RelevantExtensions[0] = ".rb"

	assert.Equal(t, "etl.py", orig.FlatFiles[0].Name)
	assert.Equal(t, ".py", orig.Metadata.RelevantExtensions[0])
}

// =============================================================================
// Knowledge Base
// =============================================================================

func TestKnowledgeBase_AddNote(t *testing.T) {
	kb := NewKnowledgeBase()
	kb.AddNote("initial_analysis", "KeyError in etl.py line 42", 0)
	kb.AddNote("traceback_files", "etl.py, config.py", 0)

	require.Len(t, kb.ErrorAnalysisNotes, 2)
	assert.Equal(t, "initial_analysis", kb.ErrorAnalysisNotes[0].Kind)
	assert.Equal(t, 0, kb.ErrorAnalysisNotes[0].Step)
	assert.False(t, kb.ErrorAnalysisNotes[0].CreatedAt.IsZero())
}

func TestKnowledgeBase_RecordFileMetadata(t *testing.T) {
	kb := NewKnowledgeBase()
	mtime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	kb.RecordFileMetadata("src/etl.py", mtime, 2048)

	meta, ok := kb.FileMetadata["src/etl.py"]
	require.True(t, ok)
	assert.Equal(t, "src/etl.py", meta.Path)
	assert.True(t, meta.MTime.Equal(mtime))
	assert.Equal(t, int64(2048), meta.Size)
	assert.False(t, meta.LastChecked.IsZero())
}

func TestKnowledgeBase_Clone(t *testing.T) {
	kb := NewKnowledgeBase()
	kb.FilesRead["a.py"] = FileReadEntry{Content: "x = 1", CachedAtStep: 1}
	kb.SearchResults["KeyError::10"] = SearchCacheEntry{
		Results: []SearchMatch{{Path: "a.py", LineNumber: 3, Line: "raise KeyError"}},
	}
	kb.FileStructure = &FileStructure{MaxDepth: 3}
	kb.AddNote("retrieval_hint", "see docs", 2)
	kb.RecordFileMetadata("a.py", time.Now(), 5)

	cp := kb.Clone()
	cp.FilesRead["a.py"] = FileReadEntry{Content: "mutated"}
	cp.SearchResults["KeyError::10"].Results[0] = SearchMatch{Path: "mutated"}
	cp.FileStructure.MaxDepth = 99
	cp.ErrorAnalysisNotes[0].Text = "mutated"
	delete(cp.FileMetadata, "a.py")

	assert.Equal(t, "x = 1", kb.FilesRead["a.py"].Content)
	assert.Equal(t, "a.py", kb.SearchResults["KeyError::10"].Results[0].Path)
	assert.Equal(t, 3, kb.FileStructure.MaxDepth)
	assert.Equal(t, "see docs", kb.ErrorAnalysisNotes[0].Text)
	assert.Contains(t, kb.FileMetadata, "a.py")
}

func TestKnowledgeBase_Clone_Nil(t *testing.T) {
	var kb *KnowledgeBase
	assert.Nil(t, kb.Clone())
}
