// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolution

import (
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// Comparison classifies the relationship between the previous blocking
// error and the current parse.
type Comparison string

const (
	// SameError: same type, same message, same file set. The error has
	// not moved.
	SameError Comparison = "same_error"

	// Progression: same file set, different type. The fix advanced past
	// the old failure into a new one in the same place.
	Progression Comparison = "progression"

	// NewError: different type and different file set.
	NewError Comparison = "new_error"

	// Resolved: a previous error existed and the current output parsed
	// clean.
	Resolved Comparison = "resolved"

	// NoError: neither a previous nor a current error.
	NoError Comparison = "no_error"
)

// Compare classifies current against previous.
//
// Any combination that is not same_error, progression, or resolved is
// reported as new_error; the engine archives the previous record and
// installs the current one, which is the safe behavior when the two
// records relate in an unrecognized way.
func Compare(previous, current *agentcontext.ErrorRecord) Comparison {
	if current == nil {
		if previous == nil {
			return NoError
		}
		return Resolved
	}
	if previous == nil {
		return NewError
	}

	sameFiles := sameFileSet(previous.FileRefs, current.FileRefs)
	sameType := previous.Type == current.Type

	switch {
	case sameType && previous.Message == current.Message && sameFiles:
		return SameError
	case sameFiles && !sameType:
		return Progression
	default:
		return NewError
	}
}

// sameFileSet compares file references as sets. Both sides are already
// deduplicated by the parser.
func sameFileSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if !set[f] {
			return false
		}
	}
	return true
}
