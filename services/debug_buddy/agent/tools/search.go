// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/discovery"
)

// maxSearchLineChars caps a returned match line; longer lines are
// clipped with an ellipsis.
const maxSearchLineChars = 500

// maxSearchMetaFiles caps how many per-file stat snapshots a cache
// entry carries. Freshness checks sample only the first few.
const maxSearchMetaFiles = 50

// binaryExtensions are file extensions skipped during content search.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bin": true, ".obj": true, ".o": true, ".a": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".ico": true, ".bmp": true, ".webp": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".jar": true, ".pyc": true, ".pyo": true, ".wasm": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
}

// searchFiles performs a case-insensitive substring search over
// project files, serving from the session cache when fresh.
func (d *Dispatcher) searchFiles(ctx context.Context, session *agentcontext.AgentContext, p SearchParams) *Result {
	key := agentcontext.SearchCacheKey(p.SearchPattern, p.FileExtensions, p.MaxResults)

	if entry, ok := session.KnowledgeBase.SearchResults[key]; ok {
		fresh := entry.Fresh(time.Now(), d.cfg.SearchCacheTTL, func(path string) (time.Time, int64, bool) {
			info, err := os.Stat(filepath.Join(session.WorkingDirectory, filepath.FromSlash(path)))
			if err != nil {
				return time.Time{}, 0, false
			}
			return info.ModTime(), info.Size(), true
		})
		if fresh {
			return successResult(
				fmt.Sprintf("found %d matches for %q (cached)", len(entry.Results), p.SearchPattern),
				searchPayload(p.SearchPattern, entry, "cache"))
		}
	}

	entry, err := d.runSearch(ctx, session.WorkingDirectory, p)
	if err != nil {
		return errorResult(fmt.Sprintf("searching for %q: %v", p.SearchPattern, err))
	}

	res := successResult(
		fmt.Sprintf("found %d matches for %q in %d files", len(entry.Results), p.SearchPattern, entry.FilesSearched),
		searchPayload(p.SearchPattern, entry, "live"))
	res.Effects.Search = &SearchEffect{Key: key, Entry: entry}
	return res
}

// runSearch walks project files and collects matching lines.
func (d *Dispatcher) runSearch(ctx context.Context, root string, p SearchParams) (agentcontext.SearchCacheEntry, error) {
	needle := strings.ToLower(p.SearchPattern)

	entry := agentcontext.SearchCacheEntry{Timestamp: time.Now()}

	err := discovery.WalkFiles(ctx, root, d.cfg.SearchMaxDepth, false, func(rel string, info fs.FileInfo) error {
		ext := strings.ToLower(filepath.Ext(rel))
		if binaryExtensions[ext] {
			return nil
		}
		if len(p.FileExtensions) > 0 && !extensionMatches(ext, p.FileExtensions) {
			return nil
		}

		entry.FilesSearched++
		if len(entry.SearchedFilesMetadata) < maxSearchMetaFiles {
			entry.SearchedFilesMetadata = append(entry.SearchedFilesMetadata, agentcontext.FileMeta{
				Path:  rel,
				MTime: info.ModTime(),
				Size:  info.Size(),
			})
		}

		matches, scanErr := scanFileForMatches(filepath.Join(root, filepath.FromSlash(rel)), rel, needle, p.MaxResults-len(entry.Results))
		if scanErr != nil {
			return nil // unreadable file, keep walking
		}
		entry.Results = append(entry.Results, matches...)
		if len(entry.Results) >= p.MaxResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return agentcontext.SearchCacheEntry{}, err
	}
	return entry, nil
}

// scanFileForMatches collects up to limit case-insensitive substring
// hits from one file.
func scanFileForMatches(abs, rel, loweredNeedle string, limit int) ([]agentcontext.SearchMatch, error) {
	if limit <= 0 {
		return nil, nil
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []agentcontext.SearchMatch
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !strings.Contains(strings.ToLower(line), loweredNeedle) {
			continue
		}
		if len(line) > maxSearchLineChars {
			line = line[:maxSearchLineChars] + "..."
		}
		matches = append(matches, agentcontext.SearchMatch{
			Path:       rel,
			LineNumber: lineNum,
			Line:       strings.TrimRight(line, " \t"),
		})
		if len(matches) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// extensionMatches reports whether a dotted extension is in the
// requested list (already normalized to dotted form).
func extensionMatches(ext string, wanted []string) bool {
	for _, w := range wanted {
		if strings.EqualFold(w, ext) {
			return true
		}
	}
	return false
}

// searchPayload shapes a search cache entry for the planner.
func searchPayload(pattern string, entry agentcontext.SearchCacheEntry, source string) map[string]any {
	return map[string]any{
		"pattern":        pattern,
		"matches":        entry.Results,
		"match_count":    len(entry.Results),
		"files_searched": entry.FilesSearched,
		"source":         source,
	}
}
