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

import "context"

// Document is one indexable chunk of a project file.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Metadata locates a document inside the project.
type Metadata struct {
	FilePath  string
	FileName  string
	StartLine int
	EndLine   int
}

// Hit is one per-modality ranking entry.
type Hit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// SearchResult is one fused ranking entry. Score mirrors CombinedScore
// so callers that only care about rank order need not know the fusion
// breakdown.
type SearchResult struct {
	ID            string
	Score         float64
	Metadata      Metadata
	BM25Score     float64
	VectorScore   float64
	CombinedScore float64
}

// FileGroup aggregates the fused results that landed in one file.
type FileGroup struct {
	FilePath   string
	FileName   string
	Chunks     []SearchResult
	MaxScore   float64
	TotalScore float64
}

// Embedder turns text into a vector. Implementations live next to the
// model transports.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer is the write side of a backend. Vectors run parallel to
// docs; a nil or missing vector indexes the document lexically only.
type Indexer interface {
	Index(ctx context.Context, docs []Document, vectors [][]float32) error
}

// Backend is a modality pair the hybrid core queries. The in-memory
// backend composes the local indexes; the Weaviate backend answers the
// same questions over GraphQL.
type Backend interface {
	// IndexSize is the larger of the two modality index sizes, used to
	// bound the expanded top-k.
	IndexSize() int

	// BM25Search ranks documents lexically against a prepared query.
	BM25Search(ctx context.Context, query string, k int) ([]Hit, error)

	// VectorSearch ranks documents by similarity to an embedding.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]Hit, error)

	// Document resolves an id back to the indexed document.
	Document(id string) (Document, bool)
}
