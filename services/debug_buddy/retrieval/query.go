// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"regexp"
	"strings"
)

// maxQueryCaptures bounds how many extracted terms a query gains.
const maxQueryCaptures = 16

// Error-shaped captures: the message after a known marker, the object
// of a "cannot ..." complaint, and the JavaScript nothing-values that
// usually name the broken access.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error:\s*([^\n]+)`),
	regexp.MustCompile(`(?i)exception:\s*([^\n]+)`),
	regexp.MustCompile(`(?i)failed:\s*([^\n]+)`),
	regexp.MustCompile(`(?i)\bcannot\s+([^\n,.;]+)`),
	regexp.MustCompile(`(?i)\b(undefined)\b`),
	regexp.MustCompile(`(?i)\b(null)\b`),
}

// Code-shaped captures: stack-frame symbols, filenames with known
// extensions, call sites, and import targets.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bat\s+([\w$.]+)`),
	regexp.MustCompile(`\b([\w./-]+\.(?:py|js|ts|jsx|tsx|java|cpp|c|rb|go|rs|php|swift|kt|cs))\b`),
	regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]{2,})\s*\(`),
	regexp.MustCompile(`\bimport\s+([\w.]+)`),
	regexp.MustCompile(`\bfrom\s+([\w.]+)\s+import\b`),
	regexp.MustCompile(`require\(['"]([^'"]+)['"]\)`),
}

// PrepareQuery appends error and code captures to a raw query so the
// identifiers buried in traceback noise reach the lexical index with
// real weight. The raw text is kept verbatim; captures are appended
// once each.
func PrepareQuery(raw string) string {
	var captures []string
	seen := make(map[string]bool)
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" || len(captures) >= maxQueryCaptures {
			return
		}
		key := strings.ToLower(term)
		if seen[key] {
			return
		}
		seen[key] = true
		captures = append(captures, term)
	}

	for _, re := range errorPatterns {
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			add(m[1])
		}
	}
	for _, re := range codePatterns {
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			add(m[1])
		}
	}

	if len(captures) == 0 {
		return raw
	}
	return raw + " " + strings.Join(captures, " ")
}
