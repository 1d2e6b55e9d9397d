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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	names := Catalog()
	assert.Len(t, names, 9)
	for _, n := range names {
		assert.True(t, n.Valid(), "catalog entry %q must be valid", n)
	}

	descriptors := Descriptors()
	require.Len(t, descriptors, len(names))
	for i, desc := range descriptors {
		assert.Equal(t, string(names[i]), desc.Name)
		assert.NotEmpty(t, desc.Description)
	}
}

func TestToolName_Valid(t *testing.T) {
	assert.True(t, ToolReadFile.Valid())
	assert.True(t, ToolFinish.Valid())
	assert.False(t, ToolName("read_file").Valid())
	assert.False(t, ToolName("").Valid())
}

func TestToolName_Mutating(t *testing.T) {
	assert.True(t, ToolProposePatch.Mutating())
	assert.True(t, ToolProposeCommand.Mutating())
	assert.False(t, ToolReadFile.Mutating())
	assert.False(t, ToolRunDiagnostic.Mutating())
}

func TestDecodeReadFileParams(t *testing.T) {
	t.Run("full range from JSON numbers", func(t *testing.T) {
		p, err := DecodeReadFileParams(map[string]any{
			"file_path":  "src/etl.py",
			"start_line": float64(10),
			"end_line":   float64(20),
		})
		require.NoError(t, err)
		assert.Equal(t, "src/etl.py", p.FilePath)
		assert.Equal(t, 10, p.StartLine)
		assert.Equal(t, 20, p.EndLine)
	})

	t.Run("missing file_path rejected", func(t *testing.T) {
		_, err := DecodeReadFileParams(map[string]any{})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		_, err := DecodeReadFileParams(map[string]any{
			"file_path":  "etl.py",
			"start_line": 20,
			"end_line":   10,
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("negative line rejected", func(t *testing.T) {
		_, err := DecodeReadFileParams(map[string]any{
			"file_path":  "etl.py",
			"start_line": -1,
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestDecodeSearchParams(t *testing.T) {
	t.Run("defaults and extension normalization", func(t *testing.T) {
		p, err := DecodeSearchParams(map[string]any{
			"search_pattern":  "load_config",
			"file_extensions": []any{"py", ".yaml"},
		})
		require.NoError(t, err)
		assert.Equal(t, 10, p.MaxResults)
		assert.Equal(t, []string{".py", ".yaml"}, p.FileExtensions)
	})

	t.Run("single string extension accepted", func(t *testing.T) {
		p, err := DecodeSearchParams(map[string]any{
			"search_pattern":  "x",
			"file_extensions": "py",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{".py"}, p.FileExtensions)
	})

	t.Run("missing pattern rejected", func(t *testing.T) {
		_, err := DecodeSearchParams(map[string]any{"max_results": 5})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("explicit max_results", func(t *testing.T) {
		p, err := DecodeSearchParams(map[string]any{
			"search_pattern": "x",
			"max_results":    float64(25),
		})
		require.NoError(t, err)
		assert.Equal(t, 25, p.MaxResults)
	})
}

func TestDecodeStructureParams(t *testing.T) {
	p, err := DecodeStructureParams(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxDepth)
	assert.False(t, p.IncludeHidden)

	p, err = DecodeStructureParams(map[string]any{
		"max_depth":      float64(5),
		"include_hidden": true,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, p.MaxDepth)
	assert.True(t, p.IncludeHidden)
}

func TestDecodePatchParams(t *testing.T) {
	t.Run("list of changes", func(t *testing.T) {
		p, err := DecodePatchParams(map[string]any{
			"file_path": "etl.py",
			"patch_content": []any{
				map[string]any{
					"line_number": float64(42),
					"action":      "replace",
					"old_content": `row["customer_id"]`,
					"new_content": `row["CustomerID"]`,
				},
			},
			"patch_description": "fix column name casing",
		})
		require.NoError(t, err)
		require.Len(t, p.Changes, 1)
		assert.Equal(t, 42, p.Changes[0].LineNumber)
		assert.Equal(t, ActionReplace, p.Changes[0].Action)
	})

	t.Run("single change object accepted", func(t *testing.T) {
		p, err := DecodePatchParams(map[string]any{
			"file_path": "etl.py",
			"patch_content": map[string]any{
				"line_number": 3,
				"action":      "delete",
			},
			"patch_description": "drop stray line",
		})
		require.NoError(t, err)
		require.Len(t, p.Changes, 1)
		assert.Equal(t, ActionDelete, p.Changes[0].Action)
	})

	t.Run("missing patch_content rejected", func(t *testing.T) {
		_, err := DecodePatchParams(map[string]any{"file_path": "etl.py"})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("empty change list rejected", func(t *testing.T) {
		_, err := DecodePatchParams(map[string]any{
			"file_path":     "etl.py",
			"patch_content": []any{},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		_, err := DecodePatchParams(map[string]any{
			"file_path": "etl.py",
			"patch_content": []any{
				map[string]any{"line_number": 1, "action": "rewrite"},
			},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("insert without content rejected", func(t *testing.T) {
		_, err := DecodePatchParams(map[string]any{
			"file_path": "etl.py",
			"patch_content": []any{
				map[string]any{"line_number": 1, "action": "insert"},
			},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("zero line number rejected", func(t *testing.T) {
		_, err := DecodePatchParams(map[string]any{
			"file_path": "etl.py",
			"patch_content": []any{
				map[string]any{"line_number": 0, "action": "delete"},
			},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestDecodeFinishParams(t *testing.T) {
	for _, status := range []string{StatusResolved, StatusGuidanceProvided, StatusCannotResolve, StatusAbortedByUser} {
		p, err := DecodeFinishParams(map[string]any{
			"conclusion_message_for_user": "done",
			"final_status":                status,
		})
		require.NoError(t, err, status)
		assert.Equal(t, status, p.FinalStatus)
	}

	_, err := DecodeFinishParams(map[string]any{
		"conclusion_message_for_user": "done",
		"final_status":                "fixed",
	})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = DecodeFinishParams(map[string]any{
		"final_status": StatusResolved,
	})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDecodeRunDiagnosticParams(t *testing.T) {
	p, err := DecodeRunDiagnosticParams(map[string]any{"command_string": "python etl.py"})
	require.NoError(t, err)
	assert.Equal(t, "python etl.py", p.CommandString)

	_, err = DecodeRunDiagnosticParams(map[string]any{"command_string": "   "})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDecodeAskUserParams(t *testing.T) {
	_, err := DecodeAskUserParams(map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	p, err := DecodeAskUserParams(map[string]any{"question_for_user": "which env?"})
	require.NoError(t, err)
	assert.Equal(t, "which env?", p.QuestionForUser)
}
