// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety enforces the agent's hard rules on planner-supplied
// input: the diagnostic command denylist and the placeholder-path
// rejection rules.
//
// # Description
//
// The gate sits between validated planner output and anything that
// touches the filesystem or spawns a process. Diagnostic commands are
// screened token by token against a denylist; file and directory
// parameters are screened against known placeholder fragments that
// models emit when they guess instead of using discovered paths.
//
// The denylist match is substring-based per token, so a command
// containing "scp" is blocked by the "cp" entry. Over-blocking is
// acceptable here; the planner can always fall back to
// propose_fix_by_command, which requires explicit user confirmation.
//
// # Thread Safety
//
// CommandGate is immutable after construction and safe for concurrent
// use.
package safety

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultBlockedCommands returns the denylist applied to diagnostic
// commands. Mutating, moving, and privilege-escalating tokens are all
// here; diagnostics must be read-only.
func DefaultBlockedCommands() []string {
	return []string{"rm", "del", "format", "mkfs", "dd", "mv", "cp", ">", ">>", "sudo"}
}

// CommandGate screens diagnostic commands against a denylist.
type CommandGate struct {
	blocked []string
}

// NewCommandGate creates a gate. A nil or empty list falls back to
// DefaultBlockedCommands.
func NewCommandGate(blocked []string) *CommandGate {
	if len(blocked) == 0 {
		blocked = DefaultBlockedCommands()
	}
	return &CommandGate{blocked: blocked}
}

// CheckCommand returns nil when the command may run as a read-only
// diagnostic, or an error wrapping ErrCommandBlocked naming the first
// offending token.
//
// Inputs:
//   - command: the raw shell command string from the planner
//
// Outputs:
//   - error: nil, or "%w: token %q matches %q"
func (g *CommandGate) CheckCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: empty command", ErrCommandBlocked)
	}
	for _, token := range strings.Fields(command) {
		lower := strings.ToLower(token)
		for _, b := range g.blocked {
			if strings.Contains(lower, b) {
				return fmt.Errorf("%w: token %q matches %q", ErrCommandBlocked, token, b)
			}
		}
	}
	return nil
}

// Blocked returns a copy of the active denylist, for prompt assembly
// and help text.
func (g *CommandGate) Blocked() []string {
	return append([]string(nil), g.blocked...)
}

// readPlaceholders are fragments that mark a guessed file_path in
// read_file_content parameters.
var readPlaceholders = []string{"path/to/data", "path/to/file", "file.csv", "data.csv"}

// listPlaceholders are fragments that mark a guessed directory_path in
// list_directory_contents parameters.
var listPlaceholders = []string{"path/to/data", "path/to/file"}

// CheckFilePath rejects read_file_content paths containing a
// placeholder fragment.
func CheckFilePath(path string) error {
	return checkPlaceholder(path, readPlaceholders)
}

// CheckDirectoryPath rejects list_directory_contents paths containing
// a placeholder fragment.
func CheckDirectoryPath(path string) error {
	return checkPlaceholder(path, listPlaceholders)
}

func checkPlaceholder(path string, fragments []string) error {
	lower := strings.ToLower(path)
	for _, frag := range fragments {
		if strings.Contains(lower, frag) {
			return fmt.Errorf("%w: %q contains %q", ErrPlaceholderPath, path, frag)
		}
	}
	return nil
}

// Common errors for the safety package.
var (
	// ErrCommandBlocked indicates a diagnostic command hit the denylist.
	ErrCommandBlocked = errors.New("command blocked by safety rules")

	// ErrPlaceholderPath indicates a planner guessed a generic path
	// instead of using a discovered one.
	ErrPlaceholderPath = errors.New("placeholder path rejected")
)
