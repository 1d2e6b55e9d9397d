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
	"strings"
)

// =============================================================================
// Optimizer Configuration
// =============================================================================

// OptimizerConfig tunes how aggressively the prompt context is
// compacted. All thresholds are configuration, not constants, so tests
// and users can vary them.
type OptimizerConfig struct {
	// MaxContentChars is the cap on any single cached file content.
	// Longer content keeps its first and last MaxContentChars/2
	// characters around a truncation marker. Default 2000.
	MaxContentChars int

	// FocusWindow keeps steps numbered above len(history)-FocusWindow
	// when a blocking error exists. Default 5.
	FocusWindow int

	// MinRetainedSteps is the floor on kept steps in focus mode.
	// Default 3.
	MinRetainedSteps int

	// FocusRecentActionsCap shrinks the recent-actions window in focus
	// mode. Default 5.
	FocusRecentActionsCap int

	// DriftThreshold is the history length above which drift mode
	// summarizes old steps. Default 5.
	DriftThreshold int

	// DriftKeepSteps is how many trailing steps survive drift
	// summarization in full. Default 3.
	DriftKeepSteps int

	// NotesThreshold and NotesMaxChars control note consolidation:
	// above the threshold, notes merge into one capped note.
	// Defaults 3 and 1500.
	NotesThreshold int
	NotesMaxChars  int

	// ProgressionCap bounds the error ledger in the optimized view.
	// Default 10.
	ProgressionCap int

	// ProtectedTools are never summarized away in focus mode, whatever
	// their age. Defaults to the two mutating proposal tools.
	ProtectedTools []string
}

// DefaultOptimizerConfig returns the standard thresholds.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxContentChars:       2000,
		FocusWindow:           5,
		MinRetainedSteps:      3,
		FocusRecentActionsCap: 5,
		DriftThreshold:        5,
		DriftKeepSteps:        3,
		NotesThreshold:        3,
		NotesMaxChars:         1500,
		ProgressionCap:        10,
		ProtectedTools:        []string{"propose_code_patch", "propose_fix_by_command"},
	}
}

func (cfg OptimizerConfig) withDefaults() OptimizerConfig {
	def := DefaultOptimizerConfig()
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = def.MaxContentChars
	}
	if cfg.FocusWindow <= 0 {
		cfg.FocusWindow = def.FocusWindow
	}
	if cfg.MinRetainedSteps <= 0 {
		cfg.MinRetainedSteps = def.MinRetainedSteps
	}
	if cfg.FocusRecentActionsCap <= 0 {
		cfg.FocusRecentActionsCap = def.FocusRecentActionsCap
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = def.DriftThreshold
	}
	if cfg.DriftKeepSteps <= 0 {
		cfg.DriftKeepSteps = def.DriftKeepSteps
	}
	if cfg.NotesThreshold <= 0 {
		cfg.NotesThreshold = def.NotesThreshold
	}
	if cfg.NotesMaxChars <= 0 {
		cfg.NotesMaxChars = def.NotesMaxChars
	}
	if cfg.ProgressionCap <= 0 {
		cfg.ProgressionCap = def.ProgressionCap
	}
	if cfg.ProtectedTools == nil {
		cfg.ProtectedTools = def.ProtectedTools
	}
	return cfg
}

// TruncationMarker separates the head and tail of truncated content.
const TruncationMarker = "\n[... truncated ...]\n"

// =============================================================================
// Optimization
// =============================================================================

// Optimize compacts a session context for prompt assembly.
//
// The function is pure with respect to the input: it deep-copies the
// context and applies every rule to the copy, so the authoritative
// session value is never mutated by prompt preparation.
//
// Rules, in order: focus mode when a blocking error exists (recent
// steps plus protected tools, error-relevant files only, tighter
// action window), drift mode otherwise (summarize old steps), file
// content truncation, note consolidation, and the progression cap.
func Optimize(ctx *AgentContext, cfg OptimizerConfig) *AgentContext {
	cfg = cfg.withDefaults()
	opt := ctx.Clone()

	if opt.CurrentBlockingError != nil {
		applyFocusMode(opt, cfg)
	} else {
		applyDriftMode(opt, cfg)
	}

	truncateFileContents(opt, cfg)
	consolidateNotes(opt, cfg)
	capProgression(opt, cfg)

	return opt
}

// applyFocusMode narrows the context to the current blocking error.
func applyFocusMode(opt *AgentContext, cfg OptimizerConfig) {
	total := len(opt.SessionHistory)
	threshold := total - cfg.FocusWindow
	// The trailing MinRetainedSteps always survive, even when the
	// focus window is configured smaller.
	if minThreshold := total - cfg.MinRetainedSteps; threshold > minThreshold {
		threshold = minThreshold
	}

	kept := make([]Step, 0, cfg.FocusWindow)
	for _, s := range opt.SessionHistory {
		if s.StepNo > threshold || isProtectedTool(s.Action.Tool, cfg.ProtectedTools) {
			kept = append(kept, s)
		}
	}
	opt.SessionHistory = kept

	// Keep only files implicated by the blocking error.
	if len(opt.CurrentBlockingError.FileRefs) > 0 {
		filtered := make(map[string]FileReadEntry)
		for path, entry := range opt.KnowledgeBase.FilesRead {
			if fileRelatesToError(path, opt.CurrentBlockingError.FileRefs) {
				filtered[path] = entry
			}
		}
		opt.KnowledgeBase.FilesRead = filtered
	}

	if len(opt.RecentActions) > cfg.FocusRecentActionsCap {
		opt.RecentActions = opt.RecentActions[len(opt.RecentActions)-cfg.FocusRecentActionsCap:]
	}
}

// applyDriftMode compresses an errorless session: old steps collapse
// into a single summary enumerating tools and statuses.
func applyDriftMode(opt *AgentContext, cfg OptimizerConfig) {
	total := len(opt.SessionHistory)
	if total <= cfg.DriftThreshold {
		return
	}

	cut := total - cfg.DriftKeepSteps
	summarized := opt.SessionHistory[:cut]
	tail := opt.SessionHistory[cut:]

	parts := make([]string, 0, len(summarized))
	for _, s := range summarized {
		parts = append(parts, fmt.Sprintf("%s=%s", s.Action.Tool, s.Result.Status))
	}
	summary := Step{
		StepNo:  summarized[len(summarized)-1].StepNo,
		Thought: fmt.Sprintf("Summary of steps 1-%d", summarized[len(summarized)-1].StepNo),
		Action:  ActionTaken{Tool: "context_summary"},
		Result: StepResult{
			Status:  StatusSuccess,
			Message: strings.Join(parts, ", "),
		},
	}

	opt.SessionHistory = append([]Step{summary}, tail...)
}

// truncateFileContents bounds every cached file content.
func truncateFileContents(opt *AgentContext, cfg OptimizerConfig) {
	for path, entry := range opt.KnowledgeBase.FilesRead {
		if len(entry.Content) > cfg.MaxContentChars {
			entry.Content = TruncateContent(entry.Content, cfg.MaxContentChars)
			opt.KnowledgeBase.FilesRead[path] = entry
		}
	}
}

// TruncateContent keeps the first and last max/2 characters around the
// truncation marker. Content at or under the cap is returned unchanged.
func TruncateContent(content string, max int) string {
	if len(content) <= max {
		return content
	}
	half := max / 2
	return content[:half] + TruncationMarker + content[len(content)-half:]
}

// consolidateNotes merges an overgrown note list into one capped note.
func consolidateNotes(opt *AgentContext, cfg OptimizerConfig) {
	notes := opt.KnowledgeBase.ErrorAnalysisNotes
	if len(notes) <= cfg.NotesThreshold {
		return
	}

	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, fmt.Sprintf("[%s] %s", n.Kind, n.Text))
	}
	merged := strings.Join(parts, "; ")
	if len(merged) > cfg.NotesMaxChars {
		merged = merged[:cfg.NotesMaxChars]
	}

	opt.KnowledgeBase.ErrorAnalysisNotes = []AnalysisNote{{
		Kind:      NoteConsolidated,
		Text:      merged,
		Step:      notes[len(notes)-1].Step,
		CreatedAt: notes[len(notes)-1].CreatedAt,
	}}
}

// capProgression keeps only the trailing ledger entries.
func capProgression(opt *AgentContext, cfg OptimizerConfig) {
	if len(opt.ErrorProgression) > cfg.ProgressionCap {
		opt.ErrorProgression = opt.ErrorProgression[len(opt.ErrorProgression)-cfg.ProgressionCap:]
	}
}

func isProtectedTool(tool string, protected []string) bool {
	for _, p := range protected {
		if tool == p {
			return true
		}
	}
	return false
}

// fileRelatesToError matches a cached path against error file refs in
// both directions, so "etl.py" relates to "src/etl.py" and the other
// way around.
func fileRelatesToError(path string, fileRefs []string) bool {
	for _, ref := range fileRefs {
		if strings.Contains(path, ref) || strings.Contains(ref, path) {
			return true
		}
	}
	return false
}
