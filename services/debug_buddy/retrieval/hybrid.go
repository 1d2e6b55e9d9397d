// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval ranks project chunks against error text with a
// hybrid of lexical and semantic search.
//
// # Description
//
// Files are split into overlapping chunks and indexed twice: a BM25
// index over code-aware tokens and a vector index over embeddings.
// Search expands the caller's top-k, enriches the query with error and
// code captures, runs both modalities concurrently, and fuses the
// rankings with a weighted score sum. RootCause rescores the fused
// results with filename and token-overlap boosts to nominate the chunk
// most likely to contain the failure's origin.
//
// The in-process MemoryBackend composes the local indexes; the
// optional Weaviate backend stores the same corpus in a running
// Weaviate instance. Both are populated through Indexer, so callers
// search identically either way. Without an Embedder the semantic
// modality is skipped and fusion degrades to weighted BM25.
//
// # Thread Safety
//
// Hybrid is safe for concurrent use when its Backend and Embedder are;
// both bundled backends are.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/discovery"
)

const (
	// expansionFactor widens the per-modality top-k before fusion so a
	// document strong in one modality survives into the blend.
	expansionFactor = 3

	// rootCauseNameBoost doubles a chunk whose filename the error log
	// names.
	rootCauseNameBoost = 2.0

	// rootCauseTokenBoost is the per-token increment for significant
	// log tokens found in a chunk body.
	rootCauseTokenBoost = 0.1

	// rootCauseDepth is how many fused results RootCauseFile rescores.
	rootCauseDepth = 10

	// significantTokenMinLen is the shortest log token that counts as
	// evidence of a root cause.
	significantTokenMinLen = 4

	// indexMaxFileBytes caps how much of a single file enters the
	// corpus via IndexTree.
	indexMaxFileBytes = 256 * 1024
)

// defaultStoplist drops english filler and traceback furniture from
// root-cause token matching. Three-letter words never reach the check;
// only tokens of significantTokenMinLen and up are listed.
var defaultStoplist = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {},
	"been": {}, "they": {}, "their": {}, "there": {}, "because": {},
	"when": {}, "what": {}, "where": {}, "which": {}, "while": {},
	"error": {}, "errors": {}, "exception": {}, "failed": {},
	"failure": {}, "warning": {}, "file": {}, "line": {}, "module": {},
	"traceback": {}, "most": {}, "recent": {}, "call": {}, "last": {},
	"stack": {}, "trace": {}, "raise": {}, "raised": {}, "during": {},
	"handling": {}, "above": {}, "occurred": {},
}

// Options configure a Hybrid searcher. The zero value yields an empty
// in-memory corpus searched lexically with default weights.
type Options struct {
	// Backend stores and ranks the corpus. Nil uses a fresh
	// MemoryBackend.
	Backend Backend

	// Embedder produces vectors for queries and indexed chunks. Nil
	// skips the semantic modality entirely.
	Embedder Embedder

	// Weights blends the modalities. The zero value uses the defaults.
	Weights Weights

	// Chunker splits files for indexing. Nil uses default sizing.
	Chunker *Chunker

	// Stoplist replaces the default significance stoplist used by
	// RootCause token matching.
	Stoplist []string

	Logger *logging.Logger
}

// Hybrid fuses lexical and semantic rankings over one corpus backend.
type Hybrid struct {
	backend  Backend
	embedder Embedder
	weights  Weights
	chunker  *Chunker
	stoplist map[string]struct{}
	log      *logging.Logger
}

// NewHybrid builds a searcher, filling unset options with defaults.
func NewHybrid(opts Options) *Hybrid {
	if opts.Backend == nil {
		opts.Backend = NewMemoryBackend()
	}
	if opts.Chunker == nil {
		opts.Chunker = NewChunker(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	stop := defaultStoplist
	if opts.Stoplist != nil {
		stop = make(map[string]struct{}, len(opts.Stoplist))
		for _, w := range opts.Stoplist {
			stop[strings.ToLower(w)] = struct{}{}
		}
	}
	return &Hybrid{
		backend:  opts.Backend,
		embedder: opts.Embedder,
		weights:  opts.Weights,
		chunker:  opts.Chunker,
		stoplist: stop,
		log:      opts.Logger,
	}
}

// IndexFile chunks one file body and adds every chunk to the backend,
// embedding each chunk when an embedder is configured. It returns the
// number of chunks indexed.
func (h *Hybrid) IndexFile(ctx context.Context, relPath, content string) (int, error) {
	idx, ok := h.backend.(Indexer)
	if !ok {
		return 0, errors.New("backend does not accept documents")
	}
	docs, err := h.chunker.Chunk(relPath, content)
	if err != nil {
		return 0, fmt.Errorf("chunking %s: %w", relPath, err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	var vectors [][]float32
	if h.embedder != nil {
		vectors = make([][]float32, len(docs))
		for i, doc := range docs {
			vec, embErr := h.embedder.Embed(ctx, doc.Content)
			if embErr != nil {
				h.log.Debug("chunk embedding unavailable, indexing lexically only",
					"path", relPath, "chunk", doc.ID, "error", embErr)
				continue
			}
			vectors[i] = vec
		}
	}

	if err := idx.Index(ctx, docs, vectors); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", relPath, err)
	}
	return len(docs), nil
}

// IndexTree walks root with the shared discovery filter and indexes
// every source, config, and markdown file small enough to chunk. It
// returns the number of files and chunks indexed.
func (h *Hybrid) IndexTree(ctx context.Context, root string) (int, int, error) {
	var files, chunks int
	err := discovery.WalkFiles(ctx, root, 0, false, func(rel string, info fs.FileInfo) error {
		if !indexable(rel) || info.Size() > indexMaxFileBytes {
			return nil
		}
		raw, readErr := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if readErr != nil {
			h.log.Debug("skipping unreadable file", "path", rel, "error", readErr)
			return nil
		}
		n, idxErr := h.IndexFile(ctx, rel, string(raw))
		if idxErr != nil {
			return idxErr
		}
		if n > 0 {
			files++
			chunks += n
		}
		return nil
	})
	if err != nil {
		return files, chunks, fmt.Errorf("indexing project tree: %w", err)
	}
	h.log.Debug("project corpus indexed", "root", root, "files", files, "chunks", chunks)
	return files, chunks, nil
}

// indexable reports whether a file's extension belongs in the corpus.
func indexable(rel string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(rel)), ".")
	return discovery.CodeExtensions[ext] || discovery.ConfigExtensions[ext] || ext == "md"
}

// Search runs both modalities for a query and returns the fused top k.
// Each modality is asked for an expanded top-k, the lesser of three
// times k and the backend size, so a document strong in only one
// modality still reaches the blend. An embedder failure drops the
// semantic modality for that query rather than failing the search.
func (h *Hybrid) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	expanded := min(expansionFactor*k, h.backend.IndexSize())
	if expanded == 0 {
		return nil, nil
	}
	prepared := PrepareQuery(query)

	var lexical, semantic []Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := h.backend.BM25Search(gctx, prepared, expanded)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexical = hits
		return nil
	})
	if h.embedder != nil {
		g.Go(func() error {
			vec, err := h.embedder.Embed(gctx, prepared)
			if err != nil {
				h.log.Debug("query embedding unavailable, searching lexically only", "error", err)
				return nil
			}
			hits, err := h.backend.VectorSearch(gctx, vec, expanded)
			if err != nil {
				return fmt.Errorf("semantic search: %w", err)
			}
			semantic = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := Fuse(lexical, semantic, h.weights)
	if len(results) > k {
		results = results[:k]
	}
	h.log.Debug("hybrid search complete",
		"k", k,
		"expanded", expanded,
		"lexical_hits", len(lexical),
		"semantic_hits", len(semantic),
		"returned", len(results))
	return results, nil
}

// RootCause searches for an error log and returns the single chunk
// most likely to contain the failure's origin. A chunk whose filename
// appears in the log doubles its score, and each distinct significant
// log token found in the chunk body adds ten percent. Score on the
// returned result carries the boosted value; the fusion breakdown
// fields keep their pre-boost values.
func (h *Hybrid) RootCause(ctx context.Context, errorLog string, k int) (*SearchResult, error) {
	results, err := h.Search(ctx, errorLog, k)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	logLower := strings.ToLower(errorLog)
	tokens := h.significantTokens(errorLog)

	var best *SearchResult
	for _, r := range results {
		score := r.CombinedScore
		if name := r.Metadata.FileName; name != "" && strings.Contains(logLower, strings.ToLower(name)) {
			score *= rootCauseNameBoost
		}
		if len(tokens) > 0 {
			if doc, ok := h.backend.Document(r.ID); ok {
				if m := matchCount(tokens, doc.Content); m > 0 {
					score *= 1 + rootCauseTokenBoost*float64(m)
				}
			}
		}
		if best == nil || score > best.Score {
			boosted := r
			boosted.Score = score
			best = &boosted
		}
	}
	h.log.Debug("root cause nominated",
		"path", best.Metadata.FilePath,
		"chunk", best.ID,
		"fused_score", best.CombinedScore,
		"boosted_score", best.Score)
	return best, nil
}

// RootCauseFile adapts RootCause to the seeding hook: it returns the
// slash-relative path of the nominated chunk's file. Failures degrade
// to a negative answer so seeding never stalls on retrieval.
func (h *Hybrid) RootCauseFile(ctx context.Context, errorLog string) (string, bool) {
	res, err := h.RootCause(ctx, errorLog, rootCauseDepth)
	if err != nil {
		h.log.Debug("root cause retrieval failed", "error", err)
		return "", false
	}
	if res == nil || res.Metadata.FilePath == "" {
		return "", false
	}
	return res.Metadata.FilePath, true
}

// significantTokens extracts the distinct log tokens worth matching
// against chunk bodies. Tokenize already lowercases.
func (h *Hybrid) significantTokens(errorLog string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(errorLog) {
		if len(tok) < significantTokenMinLen || seen[tok] {
			continue
		}
		if _, stopped := h.stoplist[tok]; stopped {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// matchCount counts how many of the tokens occur in content.
func matchCount(tokens []string, content string) int {
	terms := make(map[string]bool)
	for _, t := range Tokenize(content) {
		terms[t] = true
	}
	n := 0
	for _, tok := range tokens {
		if terms[tok] {
			n++
		}
	}
	return n
}

// GroupByFile folds chunk-level results into per-file groups ranked by
// their strongest chunk. Within a group the chunks keep their fused
// order.
func GroupByFile(results []SearchResult) []FileGroup {
	if len(results) == 0 {
		return nil
	}
	groups := make(map[string]*FileGroup, len(results))
	var order []string
	for _, r := range results {
		g, ok := groups[r.Metadata.FilePath]
		if !ok {
			g = &FileGroup{
				FilePath: r.Metadata.FilePath,
				FileName: r.Metadata.FileName,
				MaxScore: r.CombinedScore,
			}
			groups[r.Metadata.FilePath] = g
			order = append(order, r.Metadata.FilePath)
		} else if r.CombinedScore > g.MaxScore {
			g.MaxScore = r.CombinedScore
		}
		g.Chunks = append(g.Chunks, r)
		g.TotalScore += r.CombinedScore
	}
	out := make([]FileGroup, 0, len(order))
	for _, path := range order {
		out = append(out, *groups[path])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaxScore > out[j].MaxScore })
	return out
}
