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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking defaults. Overlap is a tenth of the chunk size.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Separator sets per file family. Code-aware separators keep chunks
// aligned with declarations instead of cutting mid-function.
var (
	defaultSeparators = []string{"\n\n", "\n", " ", ""}
	pythonSeparators  = []string{"\nclass ", "\ndef ", "\n\t", "\n", " "}
	cStyleSeparators  = []string{
		"\nfunction ", "\nclass ", "\ninterface ",
		"\npublic ", "\nprivate ", "\nprotected ",
		"\nfunc", "\ntype",
		"\n\n", "\n", " ", "",
	}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// Chunker splits file contents into retrieval documents with line-range
// metadata.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker. Non-positive arguments take the
// defaults.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits one file into documents. IDs are "<path>_part_<n>"; the
// line range of each chunk is recovered by locating it in the original
// content.
func (c *Chunker) Chunk(relPath, content string) ([]Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	chunks, err := c.splitterFor(relPath).SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", relPath, err)
	}

	docs := make([]Document, 0, len(chunks))
	searchFrom := 0
	for i, chunk := range chunks {
		start, end := lineRange(content, chunk, &searchFrom)
		docs = append(docs, Document{
			ID:      fmt.Sprintf("%s_part_%d", relPath, i+1),
			Content: chunk,
			Metadata: Metadata{
				FilePath:  relPath,
				FileName:  filepath.Base(relPath),
				StartLine: start,
				EndLine:   end,
			},
		})
	}
	return docs, nil
}

// splitterFor picks the separator set for the file's language family.
func (c *Chunker) splitterFor(relPath string) textsplitter.TextSplitter {
	var seps []string
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".md":
		seps = markdownSeparators
	case ".py":
		seps = pythonSeparators
	case ".js", ".ts", ".jsx", ".tsx", ".java", ".c", ".cpp", ".h", ".hpp",
		".rs", ".go", ".cs", ".kt", ".swift", ".php", ".rb":
		seps = cStyleSeparators
	default:
		seps = defaultSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
		textsplitter.WithSeparators(seps),
	)
}

// lineRange locates chunk inside content and converts the span to
// 1-based line numbers. Overlapping chunks are found by searching from
// just past the previous chunk's start.
func lineRange(content, chunk string, searchFrom *int) (int, int) {
	idx := strings.Index(content[*searchFrom:], chunk)
	if idx >= 0 {
		idx += *searchFrom
	} else {
		idx = strings.Index(content, chunk)
	}
	if idx < 0 {
		idx = min(*searchFrom, len(content))
	}
	*searchFrom = idx + 1

	start := 1 + strings.Count(content[:idx], "\n")
	end := start + strings.Count(chunk, "\n")
	return start, end
}
