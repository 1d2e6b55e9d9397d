// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools implements the closed tool catalog the planner may
// invoke.
//
// # Description
//
// The catalog is a compile-time list: a planner response naming
// anything else is rejected before dispatch. Each tool has a typed
// parameter struct decoded and validated from the planner's loose JSON
// object, a contract over the session context, and a Result that
// carries both the planner-visible payload and the context mutations
// for the orchestrator to commit.
//
// Tools never mutate the session context directly. Reads (cache
// lookups, file-state resolution) happen in the tool; writes travel
// back as Effects and are applied by the orchestrator's update step.
//
// # Thread Safety
//
// The Dispatcher is safe for concurrent use, but the orchestrator
// invokes exactly one tool at a time per session; tools assume
// exclusive access to the session value for the duration of a call.
package tools

import (
	"errors"
	"fmt"
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// =============================================================================
// Catalog
// =============================================================================

// ToolName identifies one catalog tool.
type ToolName string

const (
	ToolListDirectory  ToolName = "list_directory_contents"
	ToolReadFile       ToolName = "read_file_content"
	ToolRunDiagnostic  ToolName = "run_diagnostic_command"
	ToolSearchFiles    ToolName = "search_file_content"
	ToolFileStructure  ToolName = "get_file_structure"
	ToolProposePatch   ToolName = "propose_code_patch"
	ToolProposeCommand ToolName = "propose_fix_by_command"
	ToolAskUser        ToolName = "ask_user_for_clarification"
	ToolFinish         ToolName = "finish_debugging"
)

// Catalog returns every tool name, in prompt order.
func Catalog() []ToolName {
	return []ToolName{
		ToolListDirectory,
		ToolReadFile,
		ToolRunDiagnostic,
		ToolSearchFiles,
		ToolFileStructure,
		ToolProposePatch,
		ToolProposeCommand,
		ToolAskUser,
		ToolFinish,
	}
}

// Valid reports whether the name is in the catalog.
func (t ToolName) Valid() bool {
	switch t {
	case ToolListDirectory, ToolReadFile, ToolRunDiagnostic, ToolSearchFiles,
		ToolFileStructure, ToolProposePatch, ToolProposeCommand, ToolAskUser, ToolFinish:
		return true
	}
	return false
}

// Mutating reports whether the tool can change disk state. Only the
// two proposal tools can, and only after an explicit user yes.
func (t ToolName) Mutating() bool {
	return t == ToolProposePatch || t == ToolProposeCommand
}

// Final statuses accepted by finish_debugging.
const (
	StatusResolved         = "resolved"
	StatusGuidanceProvided = "guidance_provided"
	StatusCannotResolve    = "cannot_resolve"
	StatusAbortedByUser    = "aborted_by_user_request"
)

// =============================================================================
// Result and Effects
// =============================================================================

// Result is the outcome of one tool invocation.
type Result struct {
	// Status is one of the step statuses: success, error, finished.
	// The skipped status is produced by the deduplication gate, never
	// by a tool.
	Status string

	// Message is a one-line summary or the error text.
	Message string

	// Payload is the planner-visible result body, serialized into the
	// step result.
	Payload map[string]any

	// Effects are the context mutations this invocation requests.
	Effects Effects
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool {
	return r.Status == agentcontext.StatusSuccess || r.Status == agentcontext.StatusFinished
}

// Effects describe context mutations for the orchestrator's update
// step. Zero-value fields request nothing.
type Effects struct {
	// FileRead caches file content under its project-relative path.
	FileRead *FileReadEffect

	// Structure replaces the knowledge-base file structure cache.
	Structure *agentcontext.FileStructure

	// Search stores one search cache entry.
	Search *SearchEffect

	// Discovered adds project-relative paths to the file state.
	Discovered []string

	// FileMeta records stat snapshots for freshness checks.
	FileMeta []agentcontext.FileMeta

	// CommandOutput carries combined output for the error evolution
	// engine. Present only when a process actually ran.
	CommandOutput    string
	HasCommandOutput bool

	// FinalStatus is set by finish_debugging.
	FinalStatus string
}

// FileReadEffect is cached content for one file.
type FileReadEffect struct {
	Path    string
	Content string
}

// SearchEffect is one search cache entry keyed for reuse.
type SearchEffect struct {
	Key   string
	Entry agentcontext.SearchCacheEntry
}

// =============================================================================
// Parameter Structs
// =============================================================================

// ErrInvalidParams wraps every parameter decode or validation failure.
var ErrInvalidParams = errors.New("invalid tool parameters")

// ListDirectoryParams are the inputs to list_directory_contents.
type ListDirectoryParams struct {
	// DirectoryPath is project-relative; empty means the project root.
	DirectoryPath string
}

// DecodeListDirectoryParams validates and decodes the planner's map.
func DecodeListDirectoryParams(m map[string]any) (ListDirectoryParams, error) {
	p := ListDirectoryParams{DirectoryPath: stringField(m, "directory_path")}
	return p, nil
}

// ReadFileParams are the inputs to read_file_content.
type ReadFileParams struct {
	FilePath  string
	StartLine int // 1-based inclusive; 0 means start of file
	EndLine   int // 1-based inclusive; 0 means end of file
}

// DecodeReadFileParams validates and decodes the planner's map.
func DecodeReadFileParams(m map[string]any) (ReadFileParams, error) {
	p := ReadFileParams{
		FilePath:  stringField(m, "file_path"),
		StartLine: intField(m, "start_line"),
		EndLine:   intField(m, "end_line"),
	}
	if p.FilePath == "" {
		return p, fmt.Errorf("%w: file_path is required", ErrInvalidParams)
	}
	if p.StartLine < 0 || p.EndLine < 0 {
		return p, fmt.Errorf("%w: line numbers must be positive", ErrInvalidParams)
	}
	if p.StartLine > 0 && p.EndLine > 0 && p.EndLine < p.StartLine {
		return p, fmt.Errorf("%w: end_line %d before start_line %d", ErrInvalidParams, p.EndLine, p.StartLine)
	}
	return p, nil
}

// RunDiagnosticParams are the inputs to run_diagnostic_command.
type RunDiagnosticParams struct {
	CommandString string
}

// DecodeRunDiagnosticParams validates and decodes the planner's map.
func DecodeRunDiagnosticParams(m map[string]any) (RunDiagnosticParams, error) {
	p := RunDiagnosticParams{CommandString: stringField(m, "command_string")}
	if strings.TrimSpace(p.CommandString) == "" {
		return p, fmt.Errorf("%w: command_string is required", ErrInvalidParams)
	}
	return p, nil
}

// SearchParams are the inputs to search_file_content.
type SearchParams struct {
	SearchPattern  string
	FileExtensions []string
	MaxResults     int
}

// DecodeSearchParams validates and decodes the planner's map.
// max_results defaults to 10.
func DecodeSearchParams(m map[string]any) (SearchParams, error) {
	p := SearchParams{
		SearchPattern:  stringField(m, "search_pattern"),
		FileExtensions: stringSliceField(m, "file_extensions"),
		MaxResults:     intField(m, "max_results"),
	}
	if p.SearchPattern == "" {
		return p, fmt.Errorf("%w: search_pattern is required", ErrInvalidParams)
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 10
	}
	for i, ext := range p.FileExtensions {
		if !strings.HasPrefix(ext, ".") {
			p.FileExtensions[i] = "." + ext
		}
	}
	return p, nil
}

// StructureParams are the inputs to get_file_structure.
type StructureParams struct {
	MaxDepth      int
	IncludeHidden bool
}

// DecodeStructureParams validates and decodes the planner's map.
// max_depth defaults to 3.
func DecodeStructureParams(m map[string]any) (StructureParams, error) {
	p := StructureParams{
		MaxDepth:      intField(m, "max_depth"),
		IncludeHidden: boolField(m, "include_hidden"),
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	return p, nil
}

// PatchAction is one structured change kind.
const (
	ActionReplace = "replace"
	ActionDelete  = "delete"
	ActionInsert  = "insert"
)

// PatchChange is one structured line change.
type PatchChange struct {
	LineNumber int    `json:"line_number"`
	Action     string `json:"action"`
	OldContent string `json:"old_content,omitempty"`
	NewContent string `json:"new_content,omitempty"`
}

// PatchParams are the inputs to propose_code_patch.
type PatchParams struct {
	FilePath         string
	Changes          []PatchChange
	PatchDescription string
}

// DecodePatchParams validates and decodes the planner's map. The
// patch_content field must be a list of structured change objects;
// free-text patches are rejected so the diff is always derivable.
func DecodePatchParams(m map[string]any) (PatchParams, error) {
	p := PatchParams{
		FilePath:         stringField(m, "file_path"),
		PatchDescription: stringField(m, "patch_description"),
	}
	if p.FilePath == "" {
		return p, fmt.Errorf("%w: file_path is required", ErrInvalidParams)
	}

	raw, ok := m["patch_content"]
	if !ok || raw == nil {
		return p, fmt.Errorf("%w: patch_content is required", ErrInvalidParams)
	}

	items, ok := raw.([]any)
	if !ok {
		// A single change object is accepted as a one-element list.
		if single, isMap := raw.(map[string]any); isMap {
			items = []any{single}
		} else {
			return p, fmt.Errorf("%w: patch_content must be a list of changes", ErrInvalidParams)
		}
	}
	if len(items) == 0 {
		return p, fmt.Errorf("%w: patch_content is empty", ErrInvalidParams)
	}

	for i, item := range items {
		cm, ok := item.(map[string]any)
		if !ok {
			return p, fmt.Errorf("%w: change %d is not an object", ErrInvalidParams, i)
		}
		change := PatchChange{
			LineNumber: intField(cm, "line_number"),
			Action:     stringField(cm, "action"),
			OldContent: stringField(cm, "old_content"),
			NewContent: stringField(cm, "new_content"),
		}
		if change.LineNumber < 1 {
			return p, fmt.Errorf("%w: change %d has invalid line_number %d", ErrInvalidParams, i, change.LineNumber)
		}
		switch change.Action {
		case ActionReplace, ActionInsert:
			if change.NewContent == "" && change.Action == ActionInsert {
				return p, fmt.Errorf("%w: change %d inserts empty content", ErrInvalidParams, i)
			}
		case ActionDelete:
		default:
			return p, fmt.Errorf("%w: change %d has unknown action %q", ErrInvalidParams, i, change.Action)
		}
		p.Changes = append(p.Changes, change)
	}
	return p, nil
}

// ProposeCommandParams are the inputs to propose_fix_by_command.
type ProposeCommandParams struct {
	CommandToPropose   string
	CommandDescription string
}

// DecodeProposeCommandParams validates and decodes the planner's map.
func DecodeProposeCommandParams(m map[string]any) (ProposeCommandParams, error) {
	p := ProposeCommandParams{
		CommandToPropose:   stringField(m, "command_to_propose"),
		CommandDescription: stringField(m, "command_description"),
	}
	if strings.TrimSpace(p.CommandToPropose) == "" {
		return p, fmt.Errorf("%w: command_to_propose is required", ErrInvalidParams)
	}
	return p, nil
}

// AskUserParams are the inputs to ask_user_for_clarification.
type AskUserParams struct {
	QuestionForUser string
}

// DecodeAskUserParams validates and decodes the planner's map.
func DecodeAskUserParams(m map[string]any) (AskUserParams, error) {
	p := AskUserParams{QuestionForUser: stringField(m, "question_for_user")}
	if strings.TrimSpace(p.QuestionForUser) == "" {
		return p, fmt.Errorf("%w: question_for_user is required", ErrInvalidParams)
	}
	return p, nil
}

// FinishParams are the inputs to finish_debugging.
type FinishParams struct {
	ConclusionMessage string
	FinalStatus       string
}

// DecodeFinishParams validates and decodes the planner's map.
func DecodeFinishParams(m map[string]any) (FinishParams, error) {
	p := FinishParams{
		ConclusionMessage: stringField(m, "conclusion_message_for_user"),
		FinalStatus:       stringField(m, "final_status"),
	}
	switch p.FinalStatus {
	case StatusResolved, StatusGuidanceProvided, StatusCannotResolve, StatusAbortedByUser:
	case "":
		return p, fmt.Errorf("%w: final_status is required", ErrInvalidParams)
	default:
		return p, fmt.Errorf("%w: unknown final_status %q", ErrInvalidParams, p.FinalStatus)
	}
	if strings.TrimSpace(p.ConclusionMessage) == "" {
		return p, fmt.Errorf("%w: conclusion_message_for_user is required", ErrInvalidParams)
	}
	return p, nil
}

// =============================================================================
// Loose-Field Helpers
// =============================================================================

// stringField reads a string from a planner map, tolerating absence.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// intField reads an integer, accepting the float64 that JSON decoding
// produces for numbers.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// boolField reads a bool, tolerating absence.
func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// stringSliceField reads a list of strings, tolerating absence, []any
// from JSON decoding, and a single bare string.
func stringSliceField(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
