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
	"strings"
	"sync"
	"unicode"
)

// BM25 parameters, the standard Robertson defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Tokenize lowercases text and splits it into identifier-friendly
// terms. Underscores stay inside tokens so snake_case identifiers
// survive whole.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// BM25Index is an in-memory lexical index.
//
// # Thread Safety
//
// Safe for concurrent use. A search sees a consistent snapshot under
// the read lock.
type BM25Index struct {
	mu       sync.RWMutex
	order    []string
	rank     map[string]int
	docs     map[string]Document
	postings map[string]map[string]int
	docLen   map[string]int
	totalLen int
}

// NewBM25Index creates an empty lexical index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		rank:     make(map[string]int),
		docs:     make(map[string]Document),
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int),
	}
}

// Add indexes documents. An id that is already indexed is skipped.
func (ix *BM25Index) Add(docs ...Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, doc := range docs {
		if _, exists := ix.docs[doc.ID]; exists {
			continue
		}
		terms := Tokenize(doc.Content)

		ix.rank[doc.ID] = len(ix.order)
		ix.order = append(ix.order, doc.ID)
		ix.docs[doc.ID] = doc
		ix.docLen[doc.ID] = len(terms)
		ix.totalLen += len(terms)

		for _, t := range terms {
			posting := ix.postings[t]
			if posting == nil {
				posting = make(map[string]int)
				ix.postings[t] = posting
			}
			posting[doc.ID]++
		}
	}
}

// Len reports how many documents are indexed.
func (ix *BM25Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Document resolves an indexed id.
func (ix *BM25Index) Document(id string) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.docs[id]
	return doc, ok
}

// Search ranks every document sharing at least one term with the
// query: score descending, ties in insertion order, at most k entries.
func (ix *BM25Index) Search(query string, k int) []Hit {
	if k <= 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	// Distinct query terms contribute once each.
	seen := make(map[string]bool, len(terms))
	scores := make(map[string]float64)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		posting := ix.postings[term]
		if len(posting) == 0 {
			continue
		}
		df := float64(len(posting))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		for id, tf := range posting {
			saturated := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(ix.docLen[id])/avgLen))
			scores[id] += idf * saturated
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score, Metadata: ix.docs[id].Metadata})
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
