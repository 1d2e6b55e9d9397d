// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evolution tracks which error is currently blocking progress.
//
// It parses raw command output into structured error records, compares
// consecutive records, and drives the blocking-error lifecycle on the
// session context: install, touch, archive as solved, and append to the
// chronological progression ledger.
package evolution

import (
	"regexp"
	"strconv"
	"strings"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Error type labels. The parser assigns exactly one per record.
const (
	TypeModuleNotFound   = "module_not_found"
	TypeImportError      = "import_error"
	TypeKeyError         = "key_error"
	TypeFileNotFound     = "file_not_found"
	TypeSyntaxError      = "syntax_error"
	TypeAttributeError   = "attribute_error"
	TypeValueError       = "value_error"
	TypeTypeError        = "type_error"
	TypeGenericError     = "generic_error"
	TypeGenericException = "generic_exception"
	TypeCommandNotFound  = "command_not_found"
)

// =============================================================================
// Pattern Table
// =============================================================================

// pattern pairs a taxonomy label with its recognizer. The message is
// always capture group 1.
type pattern struct {
	errType string
	re      *regexp.Regexp
}

// patterns is priority-ordered: the first match wins. Specific
// taxonomies come before the generic Error:/Exception: catch-alls so a
// ValueError is never classified as generic.
var patterns = []pattern{
	{TypeModuleNotFound, regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`)},
	{TypeImportError, regexp.MustCompile(`ImportError: (.+)`)},
	{TypeKeyError, regexp.MustCompile(`KeyError: '?([^'\n]+)'?`)},
	{TypeFileNotFound, regexp.MustCompile(`FileNotFoundError: (?:\[Errno \d+\] )?(.+)`)},
	{TypeSyntaxError, regexp.MustCompile(`SyntaxError: (.+)`)},
	{TypeAttributeError, regexp.MustCompile(`AttributeError: (.+)`)},
	{TypeValueError, regexp.MustCompile(`ValueError: (.+)`)},
	{TypeTypeError, regexp.MustCompile(`TypeError: (.+)`)},
	{TypeGenericError, regexp.MustCompile(`Error: (.+)`)},
	{TypeGenericException, regexp.MustCompile(`Exception: (.+)`)},
	// zsh prints the command after the phrase, bash before it. The zsh
	// shape must be tried first or the bash pattern captures the shell
	// name from "zsh: command not found: x".
	{TypeCommandNotFound, regexp.MustCompile(`command not found: (\S+)`)},
	{TypeCommandNotFound, regexp.MustCompile(`([^\s:']+): command not found`)},
	{TypeCommandNotFound, regexp.MustCompile(`'([^']+)' is not recognized`)},
}

var (
	fileRefRe = regexp.MustCompile(`File "([^"]+)"`)
	lineRefRe = regexp.MustCompile(`line (\d+)`)
)

// =============================================================================
// Parsing
// =============================================================================

// Parse scans combined command output (stderr first, then stdout) and
// returns a structured error record, or nil when no known error shape
// is present.
//
// Inputs:
//   - output: raw combined output, any size
//
// Outputs:
//   - *ErrorRecord with type, message, deduplicated file and line refs,
//     and the raw output attached; nil when nothing matched
func Parse(output string) *agentcontext.ErrorRecord {
	if strings.TrimSpace(output) == "" {
		return nil
	}

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		return &agentcontext.ErrorRecord{
			Type:      p.errType,
			Message:   strings.TrimSpace(m[1]),
			FileRefs:  extractFileRefs(output),
			LineRefs:  extractLineRefs(output),
			RawOutput: output,
		}
	}
	return nil
}

// extractFileRefs collects every `File "PATH"` occurrence, first
// occurrence order, duplicates removed.
func extractFileRefs(output string) []string {
	matches := fileRefRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// extractLineRefs collects every `line N` occurrence, first occurrence
// order, duplicates removed.
func extractLineRefs(output string) []int {
	matches := lineRefRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(matches))
	refs := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !seen[n] {
			seen[n] = true
			refs = append(refs, n)
		}
	}
	return refs
}
