// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seeder

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/discovery"
)

// Watcher invalidates seeded caches when project files change while a
// session runs.
//
// The session context is not safe for concurrent use, so the watcher
// never touches it from its own goroutine. Events accumulate in a
// pending set; the loop drains them through Apply between steps, on the
// goroutine that owns the context. Coalescing happens naturally in the
// set, so the pull model needs no debounce timer.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
	log  *logging.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	pending  map[string]struct{}
	watching bool
}

// NewWatcher creates a watcher for the project root. A nil logger falls
// back to the process default.
func NewWatcher(root string, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		fsw:     fsw,
		log:     log,
		done:    make(chan struct{}),
		pending: make(map[string]struct{}),
	}, nil
}

// Start registers the project's directories and begins collecting
// change events. Hidden directories and the usual vendor trees are not
// watched. Returns immediately; the event goroutine exits on Stop or
// context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)
	return nil
}

// Stop closes the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether Start has run and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Pending reports how many changed paths await Apply.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Apply drains the pending changes into the context: cached reads and
// stat snapshots for changed paths are dropped, search entries that
// scanned a changed path are voided, and the structure cache is cleared
// when a change falls inside its depth. Must be called by the goroutine
// that owns the context. Returns the number of invalidated entries.
func (w *Watcher) Apply(sctx *agentcontext.AgentContext) int {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return 0
	}
	changed := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	kb := sctx.KnowledgeBase
	invalidated := 0

	for rel := range changed {
		if _, ok := kb.FilesRead[rel]; ok {
			delete(kb.FilesRead, rel)
			invalidated++
		}
		delete(kb.FileMetadata, rel)
	}

	for key, entry := range kb.SearchResults {
		for _, meta := range entry.SearchedFilesMetadata {
			if _, ok := changed[meta.Path]; ok {
				delete(kb.SearchResults, key)
				invalidated++
				break
			}
		}
	}

	if kb.FileStructure != nil {
		for rel := range changed {
			if discovery.DepthOf(rel) <= kb.FileStructure.MaxDepth {
				kb.FileStructure = nil
				invalidated++
				break
			}
		}
	}

	if invalidated > 0 {
		w.log.Debug("stale caches invalidated",
			"changed_paths", len(changed), "entries", invalidated)
	}
	return invalidated
}

// addRecursive watches root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// processEvents converts fsnotify events into pending relative paths.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, ok := w.relPath(event.Name)
			if !ok {
				continue
			}

			w.mu.Lock()
			w.pending[rel] = struct{}{}
			w.mu.Unlock()

			// A directory created under the root needs its own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.log.Debug("watch add failed", "path", rel, "error", err.Error())
					}
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debug("watch error", "error", err.Error())
		}
	}
}

// relPath converts an event path to the slash-relative form the caches
// key on. The second return is false for paths outside the root or
// inside ignored directories.
func (w *Watcher) relPath(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if ignoredDir(seg) {
			return "", false
		}
	}
	return rel, true
}

// ignoredDir reports whether a path segment is hidden or one of the
// directories the scanner never walks.
func ignoredDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	for _, s := range discovery.SkippedDirs {
		if name == s {
			return true
		}
	}
	return false
}
