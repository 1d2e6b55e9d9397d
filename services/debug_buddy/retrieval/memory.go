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

// MemoryBackend keeps both retrieval modalities in process. It is the
// default backend and the only one that works fully offline.
//
// # Thread Safety
//
// Safe for concurrent use; the composed indexes carry their own locks.
type MemoryBackend struct {
	lexical  *BM25Index
	semantic *VectorIndex
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		lexical:  NewBM25Index(),
		semantic: NewVectorIndex(),
	}
}

// Index adds documents to the lexical index and, where a vector is
// supplied, to the semantic index as well.
func (m *MemoryBackend) Index(_ context.Context, docs []Document, vectors [][]float32) error {
	for i, doc := range docs {
		m.lexical.Add(doc)
		if i < len(vectors) && len(vectors[i]) > 0 {
			m.semantic.Add(doc, vectors[i])
		}
	}
	return nil
}

// IndexSize is the larger of the two modality sizes.
func (m *MemoryBackend) IndexSize() int {
	return max(m.lexical.Len(), m.semantic.Len())
}

// BM25Search ranks the lexical index against a prepared query.
func (m *MemoryBackend) BM25Search(_ context.Context, query string, k int) ([]Hit, error) {
	return m.lexical.Search(query, k), nil
}

// VectorSearch ranks the semantic index against an embedding.
func (m *MemoryBackend) VectorSearch(_ context.Context, embedding []float32, k int) ([]Hit, error) {
	return m.semantic.Search(embedding, k), nil
}

// Document resolves an id from either modality.
func (m *MemoryBackend) Document(id string) (Document, bool) {
	if doc, ok := m.lexical.Document(id); ok {
		return doc, true
	}
	return m.semantic.Document(id)
}
