// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON indicates a model response carried no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON pulls the first valid JSON object out of a model
// response. Models wrap decisions in prose, markdown fences, or both;
// this tries the cheap paths first and falls back to a brace scan.
//
// Inputs:
//   - response: raw completion text.
//
// Outputs:
//   - []byte: the extracted object, valid JSON.
//   - error: ErrNoJSON when nothing parseable was found.
func ExtractJSON(response string) ([]byte, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrNoJSON)
	}

	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	if body, ok := fencedBlock(trimmed); ok {
		if strings.HasPrefix(body, "{") && json.Valid([]byte(body)) {
			return []byte(body), nil
		}
	}

	if obj, ok := firstObject(trimmed); ok {
		return []byte(obj), nil
	}

	return nil, ErrNoJSON
}

// fencedBlock returns the content of the first markdown code fence,
// accepting an optional json language tag in any case.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]

	nl := strings.Index(rest, "\n")
	if nl == -1 {
		return "", false
	}
	tag := strings.TrimSpace(rest[:nl])
	if tag != "" && !strings.EqualFold(tag, "json") {
		return "", false
	}
	rest = rest[nl+1:]

	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstObject scans for the first balanced, valid JSON object.
// Candidates that balance but fail validation are skipped so that
// prose braces ahead of the real object do not mask it.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += 1 + next
	}
	return "", false
}

// matchBrace returns the index of the brace closing the object opened
// at start, honoring JSON string and escape rules.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
