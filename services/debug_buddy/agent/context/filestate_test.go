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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func existsSet(paths ...string) ExistsFunc {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(relPath string) bool { return set[relPath] }
}

// =============================================================================
// Resolution Ordering
// =============================================================================

func TestFileState_Resolve(t *testing.T) {
	t.Run("mapping wins over everything", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.FileMappings["etl.py"] = "src/etl.py"
		fs.PrimaryErrorFile = "other.py"
		fs.AddDiscovered("third.py")

		got := fs.Resolve("etl.py", existsSet("etl.py"))
		assert.Equal(t, "src/etl.py", got)
	})

	t.Run("existing path beats primary error file", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.PrimaryErrorFile = "src/etl.py"

		got := fs.Resolve("config.yaml", existsSet("config.yaml"))
		assert.Equal(t, "config.yaml", got)
	})

	t.Run("primary error file beats discovered", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.PrimaryErrorFile = "src/etl.py"
		fs.AddDiscovered("README.md")

		got := fs.Resolve("pipeline.py", existsSet())
		assert.Equal(t, "src/etl.py", got)
	})

	t.Run("first discovered file as fallback", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("main.py")
		fs.AddDiscovered("util.py")

		got := fs.Resolve("missing.py", existsSet())
		assert.Equal(t, "main.py", got)
	})

	t.Run("unchanged when nothing is known", func(t *testing.T) {
		fs := NewFileState("/proj")

		got := fs.Resolve("ghost.py", existsSet())
		assert.Equal(t, "ghost.py", got)
	})

	t.Run("nil exists func skips the disk check", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("main.py")

		got := fs.Resolve("anything.py", nil)
		assert.Equal(t, "main.py", got)
	})
}

// =============================================================================
// Discovery
// =============================================================================

func TestFileState_AddDiscovered_Dedup(t *testing.T) {
	fs := NewFileState("/proj")
	fs.AddDiscovered("a.py")
	fs.AddDiscovered("b.py")
	fs.AddDiscovered("a.py")

	assert.Equal(t, []string{"a.py", "b.py"}, fs.DiscoveredFiles)
}

// =============================================================================
// Mapping Construction
// =============================================================================

func TestFileState_BuildMappings(t *testing.T) {
	t.Run("exact basename match", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("src/etl.py")
		fs.AddDiscovered("src/config.py")

		fs.BuildMappings([]string{"/usr/lib/app/etl.py"})

		assert.Equal(t, "src/etl.py", fs.FileMappings["etl.py"])
	})

	t.Run("stem containment match", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("src/etl_pipeline.py")

		fs.BuildMappings([]string{"etl.py"})

		assert.Equal(t, "src/etl_pipeline.py", fs.FileMappings["etl.py"])
	})

	t.Run("no mapping when nothing matches", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("README.md")

		fs.BuildMappings([]string{"etl.py"})

		_, ok := fs.FileMappings["etl.py"]
		assert.False(t, ok)
	})

	t.Run("exact match preferred by discovery order", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("etl.py")
		fs.AddDiscovered("old/etl_backup.py")

		fs.BuildMappings([]string{"lib/etl.py"})

		assert.Equal(t, "etl.py", fs.FileMappings["etl.py"])
	})

	t.Run("every mapping target was discovered", func(t *testing.T) {
		fs := NewFileState("/proj")
		fs.AddDiscovered("a.py")
		fs.AddDiscovered("b.py")

		fs.BuildMappings([]string{"a.py", "b.py", "c.py"})

		discovered := map[string]bool{"a.py": true, "b.py": true}
		for name, target := range fs.FileMappings {
			assert.True(t, discovered[target], "mapping %s -> %s points at undiscovered file", name, target)
		}
		assert.Len(t, fs.FileMappings, 2)
	})
}

// =============================================================================
// Clone
// =============================================================================

func TestFileState_Clone(t *testing.T) {
	fs := NewFileState("/proj")
	fs.AddDiscovered("a.py")
	fs.FileMappings["a"] = "a.py"
	fs.PrimaryErrorFile = "a.py"

	cp := fs.Clone()
	cp.DiscoveredFiles[0] = "mutated"
	cp.FileMappings["a"] = "mutated"
	cp.PrimaryErrorFile = "mutated"

	assert.Equal(t, "a.py", fs.DiscoveredFiles[0])
	assert.Equal(t, "a.py", fs.FileMappings["a"])
	assert.Equal(t, "a.py", fs.PrimaryErrorFile)
}

func TestFileState_Clone_Nil(t *testing.T) {
	var fs *FileState
	assert.Nil(t, fs.Clone())
}

func TestNewFileState(t *testing.T) {
	fs := NewFileState("/home/dev/proj")
	require.NotNil(t, fs)
	assert.Equal(t, "/home/dev/proj", fs.WorkingDirectory)
	assert.Empty(t, fs.DiscoveredFiles)
	assert.Empty(t, fs.FileMappings)
}
