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
	"math"
	"sort"
	"sync"
)

// VectorIndex is an in-memory cosine-similarity index.
//
// # Thread Safety
//
// Safe for concurrent use.
type VectorIndex struct {
	mu    sync.RWMutex
	order []string
	rank  map[string]int
	docs  map[string]Document
	vecs  map[string][]float32
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		rank: make(map[string]int),
		docs: make(map[string]Document),
		vecs: make(map[string][]float32),
	}
}

// Add indexes a document under its embedding. An id that is already
// indexed is skipped.
func (ix *VectorIndex) Add(doc Document, embedding []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docs[doc.ID]; exists {
		return
	}
	ix.rank[doc.ID] = len(ix.order)
	ix.order = append(ix.order, doc.ID)
	ix.docs[doc.ID] = doc
	ix.vecs[doc.ID] = embedding
}

// Len reports how many documents are indexed.
func (ix *VectorIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Document resolves an indexed id.
func (ix *VectorIndex) Document(id string) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.docs[id]
	return doc, ok
}

// Search ranks documents by cosine similarity to the embedding: score
// descending, ties in insertion order, at most k entries.
func (ix *VectorIndex) Search(embedding []float32, k int) []Hit {
	if k <= 0 || len(embedding) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]Hit, 0, len(ix.order))
	for _, id := range ix.order {
		hits = append(hits, Hit{
			ID:       id,
			Score:    Cosine(embedding, ix.vecs[id]),
			Metadata: ix.docs[id].Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return ix.rank[hits[i].ID] < ix.rank[hits[j].ID]
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Cosine is the cosine similarity of two vectors. Mismatched lengths
// and zero-magnitude vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
