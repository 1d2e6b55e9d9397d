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
	"path/filepath"
	"strings"
)

// FileState is the resolution table from planner-supplied filenames to
// paths that actually exist in the project. Planners routinely name
// files by basename or by a traceback fragment; the mappings let tools
// land on the real file instead of erroring.
type FileState struct {
	// DiscoveredFiles are project-relative paths found during seeding
	// and directory listings, in discovery order.
	DiscoveredFiles []string `json:"discovered_files"`

	// PrimaryErrorFile is the file most implicated by the blocking
	// error, when one could be determined.
	PrimaryErrorFile string `json:"primary_error_file,omitempty"`

	// FileMappings maps a short or traceback name to a discovered path.
	// An entry exists only if the target was on disk or in
	// DiscoveredFiles when the mapping was built.
	FileMappings map[string]string `json:"file_mappings"`

	// WorkingDirectory mirrors the session working directory so the
	// state is self-describing when serialized.
	WorkingDirectory string `json:"working_directory"`
}

// NewFileState returns an empty file state for the working directory.
func NewFileState(cwd string) *FileState {
	return &FileState{
		DiscoveredFiles:  []string{},
		FileMappings:     make(map[string]string),
		WorkingDirectory: cwd,
	}
}

// Clone returns a deep copy.
func (fs *FileState) Clone() *FileState {
	if fs == nil {
		return nil
	}
	cp := &FileState{
		DiscoveredFiles:  append([]string(nil), fs.DiscoveredFiles...),
		PrimaryErrorFile: fs.PrimaryErrorFile,
		FileMappings:     make(map[string]string, len(fs.FileMappings)),
		WorkingDirectory: fs.WorkingDirectory,
	}
	for k, v := range fs.FileMappings {
		cp.FileMappings[k] = v
	}
	return cp
}

// AddDiscovered records a file if it is not already known.
func (fs *FileState) AddDiscovered(relPath string) {
	for _, f := range fs.DiscoveredFiles {
		if f == relPath {
			return
		}
	}
	fs.DiscoveredFiles = append(fs.DiscoveredFiles, relPath)
}

// ExistsFunc reports whether a path, relative to the session working
// directory, exists on disk. Injected so resolution stays testable.
type ExistsFunc func(relPath string) bool

// Resolve maps a requested path to the best candidate, by ordered rule:
//
//  1. an explicit mapping for the requested name
//  2. the requested path itself, when it exists under the working
//     directory
//  3. the primary error file, when set
//  4. the first discovered file, when any exist
//  5. the requested path unchanged (the caller's existence check will
//     then fail with a clear error)
func (fs *FileState) Resolve(requested string, exists ExistsFunc) string {
	if mapped, ok := fs.FileMappings[requested]; ok {
		return mapped
	}
	if exists != nil && exists(requested) {
		return requested
	}
	if fs.PrimaryErrorFile != "" {
		return fs.PrimaryErrorFile
	}
	if len(fs.DiscoveredFiles) > 0 {
		return fs.DiscoveredFiles[0]
	}
	return requested
}

// BuildMappings creates name-to-path mappings for traceback-mentioned
// files.
//
// For each mentioned file, the basename is matched against discovered
// files: an exact basename match wins; otherwise a discovered file
// whose name contains the basename's stem is used. A mapping is only
// created when a discovered target was found, which preserves the
// invariant that every mapping points at a real file.
func (fs *FileState) BuildMappings(tracebackFiles []string) {
	for _, tf := range tracebackFiles {
		base := filepath.Base(tf)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		for _, df := range fs.DiscoveredFiles {
			dfBase := filepath.Base(df)
			if dfBase == base || (stem != "" && strings.Contains(dfBase, stem)) {
				fs.FileMappings[base] = df
				break
			}
		}
	}
}
