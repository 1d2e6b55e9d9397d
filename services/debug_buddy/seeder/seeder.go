// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seeder populates a fresh session context before the first
// planner call.
//
// # Description
//
// Seeding runs once at session start. It parses the failing command's
// output into a structured blocking error, scans the project for its
// structure and debugging-relevant files, derives the file-state
// resolution table, eagerly caches the files the traceback implicates,
// and writes the typed analysis notes the planner reads on step one.
// When the blocking error is module or import shaped, the project's
// dependency manifests are inventoried into an extra note.
//
// An optional Watcher keeps the seeded caches honest while the session
// runs: it observes filesystem changes and invalidates the affected
// file-read, search, and structure caches between steps.
//
// # Thread Safety
//
// Seed owns the context exclusively while it runs and must complete
// before the orchestrator starts. Watcher is safe for concurrent use,
// but Watcher.Apply mutates the context and must only be called by the
// goroutine that owns it.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/discovery"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/evolution"
)

// Default seeding tunables.
const (
	// DefaultMaxEagerReads caps how many implicated files get cached
	// before the first step.
	DefaultMaxEagerReads = 5

	// DefaultReadConcurrency bounds the parallel eager reads.
	DefaultReadConcurrency = 4

	// DefaultMaxReadBytes caps one eager read. Larger files are cached
	// truncated at this boundary.
	DefaultMaxReadBytes = 128 * 1024
)

// RootCauseFunc lets a retrieval backend nominate the project-relative
// file most likely to contain the root cause of an error log. The
// second return is false when the backend has no confident answer.
type RootCauseFunc func(ctx context.Context, errorLog string) (relPath string, ok bool)

// Options configure a Seeder. Zero fields take the package defaults.
type Options struct {
	// MaxDepth bounds the structure scan. Zero means the discovery
	// default.
	MaxDepth int

	// IncludeHidden keeps dotfiles in the structure scan.
	IncludeHidden bool

	// MaxEagerReads, ReadConcurrency, and MaxReadBytes bound the
	// up-front file caching.
	MaxEagerReads   int
	ReadConcurrency int
	MaxReadBytes    int64

	// RootCause, when set, adds a retrieval hint note for the seeded
	// blocking error.
	RootCause RootCauseFunc

	// Engine applies the initial blocking-error transition. Nil builds
	// a default engine.
	Engine *evolution.Engine

	// Logger defaults to the process logger.
	Logger *logging.Logger
}

// Seeder performs the one-time knowledge-base population.
type Seeder struct {
	opts   Options
	engine *evolution.Engine
	log    *logging.Logger
}

// New creates a Seeder with defaults filled in.
func New(opts Options) *Seeder {
	if opts.Engine == nil {
		opts.Engine = evolution.NewEngine(opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.MaxEagerReads <= 0 {
		opts.MaxEagerReads = DefaultMaxEagerReads
	}
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = DefaultReadConcurrency
	}
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = DefaultMaxReadBytes
	}
	return &Seeder{opts: opts, engine: opts.Engine, log: opts.Logger}
}

// Seed populates the session context in place.
//
// Order matters: the error analysis runs first so the structure scan
// and file-state derivation can key off the blocking error's traceback
// files, and the eager reads come last so they only touch files the
// derivation found to exist.
//
// Inputs:
//   - ctx: cancels the scan and the eager reads
//   - sctx: a freshly constructed session context
//
// Outputs:
//   - error: non-nil when the project root cannot be scanned or the
//     context is canceled; note and analysis failures are logged, not
//     returned, so a degraded seed still yields a usable session
func (s *Seeder) Seed(ctx context.Context, sctx *agentcontext.AgentContext) error {
	if sctx == nil {
		return errors.New("nil session context")
	}

	s.analyzeInitialOutput(sctx)

	structure, err := discovery.Scan(ctx, sctx.WorkingDirectory, discovery.Options{
		MaxDepth:      s.opts.MaxDepth,
		IncludeHidden: s.opts.IncludeHidden,
	})
	if err != nil {
		return fmt.Errorf("seeding project structure: %w", err)
	}
	sctx.KnowledgeBase.FileStructure = structure

	s.deriveFileState(sctx, structure)
	if err := s.eagerReads(ctx, sctx); err != nil {
		return err
	}
	s.dependencyInventory(sctx)
	s.retrievalHint(ctx, sctx)

	errType := "none"
	if sctx.CurrentBlockingError != nil {
		errType = sctx.CurrentBlockingError.Type
	}
	s.log.Info("knowledge base seeded",
		"working_directory", sctx.WorkingDirectory,
		"blocking_error", errType,
		"discovered_files", len(sctx.FileState.DiscoveredFiles),
		"primary_error_file", sctx.FileState.PrimaryErrorFile,
		"files_cached", len(sctx.KnowledgeBase.FilesRead),
		"notes", len(sctx.KnowledgeBase.ErrorAnalysisNotes))
	return nil
}

// deriveFileState fills the resolution table from the scan and the
// blocking error's traceback files.
func (s *Seeder) deriveFileState(sctx *agentcontext.AgentContext, structure *agentcontext.FileStructure) {
	for _, e := range structure.FlatFiles {
		sctx.FileState.AddDiscovered(e.Path)
	}

	rec := sctx.CurrentBlockingError
	if rec == nil || len(rec.FileRefs) == 0 {
		return
	}
	sctx.FileState.BuildMappings(rec.FileRefs)

	// The primary error file is the first traceback file that resolved
	// to a discovered path.
	for _, ref := range rec.FileRefs {
		if mapped, ok := sctx.FileState.FileMappings[filepath.Base(ref)]; ok {
			sctx.FileState.PrimaryErrorFile = mapped
			break
		}
	}
}

// eagerReads caches the implicated files so the planner's first
// read_file_content is usually already answered.
func (s *Seeder) eagerReads(ctx context.Context, sctx *agentcontext.AgentContext) error {
	targets := s.eagerTargets(sctx.FileState)
	if len(targets) == 0 {
		return nil
	}

	type eagerRead struct {
		content string
		ok      bool
	}
	reads := make([]eagerRead, len(targets))

	// The reads fan out; each goroutine writes only its own slot. The
	// context itself is written strictly after Wait.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ReadConcurrency)
	for i, rel := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			abs := filepath.Join(sctx.WorkingDirectory, filepath.FromSlash(rel))
			content, err := readCapped(abs, s.opts.MaxReadBytes)
			if err != nil {
				s.log.Debug("eager read skipped", "path", rel, "error", err.Error())
				return nil
			}
			reads[i] = eagerRead{content: content, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("seeding file reads: %w", err)
	}

	for i, rel := range targets {
		if reads[i].ok {
			sctx.CacheFileRead(rel, reads[i].content, 0)
		}
	}
	return nil
}

// eagerTargets returns the unique files worth caching up front: the
// primary error file, then every mapped traceback file, capped.
func (s *Seeder) eagerTargets(fs *agentcontext.FileState) []string {
	var targets []string
	seen := make(map[string]bool)
	add := func(rel string) {
		if rel == "" || seen[rel] || len(targets) >= s.opts.MaxEagerReads {
			return
		}
		seen[rel] = true
		targets = append(targets, rel)
	}

	add(fs.PrimaryErrorFile)

	names := make([]string, 0, len(fs.FileMappings))
	for name := range fs.FileMappings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(fs.FileMappings[name])
	}
	return targets
}

// retrievalHint asks the configured retrieval backend which file it
// would blame, and records the answer as a note.
func (s *Seeder) retrievalHint(ctx context.Context, sctx *agentcontext.AgentContext) {
	rec := sctx.CurrentBlockingError
	if s.opts.RootCause == nil || rec == nil {
		return
	}
	rel, ok := s.opts.RootCause(ctx, rec.RawOutput)
	if !ok {
		return
	}
	sctx.KnowledgeBase.AddNote(agentcontext.NoteRetrievalHint,
		fmt.Sprintf("retrieval ranks %s as the most likely root-cause file", rel), 0)

	if sctx.FileState.PrimaryErrorFile != "" {
		return
	}
	// Adopt the hint as the primary error file only when the scan saw it.
	for _, df := range sctx.FileState.DiscoveredFiles {
		if df == rel {
			sctx.FileState.PrimaryErrorFile = rel
			return
		}
	}
}

// readCapped reads at most maxBytes of one file.
func readCapped(abs string, maxBytes int64) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
