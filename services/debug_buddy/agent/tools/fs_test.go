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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

func TestListDirectory(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	t.Run("root listing from disk", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolListDirectory, nil)
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
		assert.Contains(t, res.Effects.Discovered, "etl.py")
		assert.Contains(t, res.Effects.Discovered, "config.yaml")
		assert.NotContains(t, res.Effects.Discovered, "src", "directories are not discovered files")
	})

	t.Run("subdirectory listing", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolListDirectory, map[string]any{
			"directory_path": "src/pipeline",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		entries, ok := res.Payload["entries"].([]agentcontext.FileEntry)
		require.True(t, ok)
		require.Len(t, entries, 1)
		assert.Equal(t, "src/pipeline/transform.py", entries[0].Path)
		assert.Equal(t, 3, entries[0].Depth)
	})

	t.Run("missing directory", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolListDirectory, map[string]any{
			"directory_path": "no_such_dir",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "Directory not found: no_such_dir")
	})

	t.Run("placeholder path rejected", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolListDirectory, map[string]any{
			"directory_path": "path/to/data",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "placeholder path rejected")
	})

	t.Run("root served from cached discovery", func(t *testing.T) {
		session := newTestSession(t)
		session.FileState.AddDiscovered("etl.py")
		session.KnowledgeBase.FileStructure = &agentcontext.FileStructure{
			FlatFiles: []agentcontext.FileEntry{
				{Name: "etl.py", Path: "etl.py", Type: "file", Depth: 1},
			},
			MaxDepth: 3,
			CachedAt: time.Now(),
		}

		res := d.Execute(context.Background(), session, ToolListDirectory, map[string]any{
			"directory_path": ".",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "cache", res.Payload["source"])
		assert.Equal(t, 1, res.Payload["count"])
		assert.Empty(t, res.Effects.Discovered, "cache hits request no context changes")
	})
}

func TestReadFile(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	t.Run("whole file from disk", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "etl.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "etl.py", res.Payload["file_path"])
		assert.Equal(t, 8, res.Payload["total_lines"])
		assert.Equal(t, "disk", res.Payload["source"])
		require.NotNil(t, res.Effects.FileRead)
		assert.Equal(t, "etl.py", res.Effects.FileRead.Path)
		assert.Contains(t, res.Effects.FileRead.Content, "DictReader")
		require.Len(t, res.Effects.FileMeta, 1)
		assert.Equal(t, []string{"etl.py"}, res.Effects.Discovered)
	})

	t.Run("line range", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path":  "etl.py",
			"start_line": 3,
			"end_line":   5,
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		content := res.Payload["content"].(string)
		assert.Contains(t, content, "def load(path):")
		assert.Contains(t, content, "DictReader")
		assert.NotContains(t, content, "import csv")
		assert.Contains(t, res.Message, "lines 3-5")
	})

	t.Run("end clamped to file length", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path":  "etl.py",
			"start_line": 7,
			"end_line":   999,
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Contains(t, res.Payload["content"].(string), "CustomerID")
	})

	t.Run("start beyond end of file", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path":  "etl.py",
			"start_line": 99,
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "start_line 99 beyond end of file")
	})

	t.Run("missing file", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "ghost.py",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "File not found: ghost.py")
	})

	t.Run("placeholder path rejected", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "path/to/data.csv",
		})
		require.Equal(t, agentcontext.StatusError, res.Status)
		assert.Contains(t, res.Message, "placeholder path rejected")
	})

	t.Run("basename resolves through file mappings", func(t *testing.T) {
		session := newTestSession(t)
		session.FileState.FileMappings["transform.py"] = "src/pipeline/transform.py"

		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "transform.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "src/pipeline/transform.py", res.Payload["file_path"])
		assert.Equal(t, "transform.py", res.Payload["resolved_from"])
	})

	t.Run("unknown name falls back to primary error file", func(t *testing.T) {
		session := newTestSession(t)
		session.FileState.PrimaryErrorFile = "etl.py"

		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "job.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "etl.py", res.Payload["file_path"])
		assert.Equal(t, "job.py", res.Payload["resolved_from"])
	})

	t.Run("recent unchanged read served from cache", func(t *testing.T) {
		session := newTestSession(t)
		abs := filepath.Join(session.WorkingDirectory, "etl.py")
		info, err := os.Stat(abs)
		require.NoError(t, err)

		session.KnowledgeBase.FilesRead["etl.py"] = agentcontext.FileReadEntry{
			Content:      "cached body\n",
			CachedAtStep: 1,
		}
		session.KnowledgeBase.FileMetadata["etl.py"] = agentcontext.FileMeta{
			Path:  "etl.py",
			MTime: info.ModTime(),
			Size:  info.Size(),
		}

		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "etl.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "cache", res.Payload["source"])
		assert.Equal(t, "cached body\n", res.Payload["content"])
		assert.Nil(t, res.Effects.FileRead, "cache hits request no context changes")
	})

	t.Run("stale mtime forces disk read", func(t *testing.T) {
		session := newTestSession(t)
		session.KnowledgeBase.FilesRead["etl.py"] = agentcontext.FileReadEntry{
			Content:      "cached body\n",
			CachedAtStep: 1,
		}
		session.KnowledgeBase.FileMetadata["etl.py"] = agentcontext.FileMeta{
			Path:  "etl.py",
			MTime: time.Now().Add(-time.Hour),
		}

		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "etl.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
		assert.Contains(t, res.Payload["content"].(string), "import csv")
		require.NotNil(t, res.Effects.FileRead)
	})

	t.Run("read older than the cache window forces disk read", func(t *testing.T) {
		session := newTestSession(t)
		abs := filepath.Join(session.WorkingDirectory, "etl.py")
		info, err := os.Stat(abs)
		require.NoError(t, err)

		// Cached at step 1; ten steps later the window has passed even
		// though the file is unchanged.
		session.KnowledgeBase.FilesRead["etl.py"] = agentcontext.FileReadEntry{
			Content:      "cached body\n",
			CachedAtStep: 1,
		}
		session.KnowledgeBase.FileMetadata["etl.py"] = agentcontext.FileMeta{
			Path:  "etl.py",
			MTime: info.ModTime(),
		}
		for i := 0; i < 10; i++ {
			session.SessionHistory = append(session.SessionHistory, agentcontext.Step{StepNo: i + 1})
		}

		res := d.Execute(context.Background(), session, ToolReadFile, map[string]any{
			"file_path": "etl.py",
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
	})
}

func TestFileStructure(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	t.Run("live scan", func(t *testing.T) {
		session := newTestSession(t)
		res := d.Execute(context.Background(), session, ToolFileStructure, nil)
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
		assert.Contains(t, res.Payload["tree"].(string), "etl.py")
		require.NotNil(t, res.Effects.Structure)
		assert.Contains(t, res.Effects.Discovered, "src/pipeline/transform.py")
	})

	t.Run("covered request served from cache", func(t *testing.T) {
		session := newTestSession(t)
		session.KnowledgeBase.FileStructure = &agentcontext.FileStructure{
			TreeStructure: "project\n└── etl.py (1B)\n",
			FlatFiles:     []agentcontext.FileEntry{{Name: "etl.py", Path: "etl.py", Type: "file"}},
			Metadata:      agentcontext.StructureMetadata{RelevantFiles: 1, TotalFiles: 1},
			MaxDepth:      3,
			CachedAt:      time.Now(),
		}

		res := d.Execute(context.Background(), session, ToolFileStructure, map[string]any{
			"max_depth": 3,
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "cache", res.Payload["source"])
		assert.Nil(t, res.Effects.Structure)
	})

	t.Run("deeper request forces rescan", func(t *testing.T) {
		session := newTestSession(t)
		session.KnowledgeBase.FileStructure = &agentcontext.FileStructure{
			MaxDepth: 2,
			CachedAt: time.Now(),
		}

		res := d.Execute(context.Background(), session, ToolFileStructure, map[string]any{
			"max_depth": 4,
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
		require.NotNil(t, res.Effects.Structure)
		assert.Equal(t, 4, res.Effects.Structure.MaxDepth)
	})

	t.Run("hidden request not covered by hidden-excluding cache", func(t *testing.T) {
		session := newTestSession(t)
		session.KnowledgeBase.FileStructure = &agentcontext.FileStructure{
			MaxDepth:       3,
			IncludedHidden: false,
			CachedAt:       time.Now(),
		}

		res := d.Execute(context.Background(), session, ToolFileStructure, map[string]any{
			"include_hidden": true,
		})
		require.Equal(t, agentcontext.StatusSuccess, res.Status)
		assert.Equal(t, "disk", res.Payload["source"])
	})
}

func TestNormalizeRel(t *testing.T) {
	cwd := filepath.FromSlash("/home/dev/project")

	assert.Equal(t, "etl.py", normalizeRel(cwd, "etl.py"))
	assert.Equal(t, "etl.py", normalizeRel(cwd, "./etl.py"))
	assert.Equal(t, "src/etl.py", normalizeRel(cwd, "src/etl.py"))
	assert.Equal(t, "etl.py", normalizeRel(cwd, "/home/dev/project/etl.py"))
	assert.Equal(t, "/etc/passwd", normalizeRel(cwd, "/etc/passwd"),
		"paths outside the project stay absolute so the stat fails")
	assert.Equal(t, "", normalizeRel(cwd, "  "))
}

func TestSliceLines(t *testing.T) {
	content := "one\ntwo\nthree\n"

	body, total, err := sliceLines(content, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, content, body)
	assert.Equal(t, 3, total)

	body, _, err = sliceLines(content, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "two", body)

	body, _, err = sliceLines(content, 2, 99)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", body)

	_, _, err = sliceLines(content, 4, 0)
	assert.Error(t, err)
}
