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

import "sort"

// Default fusion weights.
const (
	DefaultBM25Weight   = 0.3
	DefaultVectorWeight = 0.7
)

// Weights controls the fusion blend. The zero value means the package
// defaults. Only the ratio matters: the pair is normalized to sum to 1
// before application.
type Weights struct {
	BM25   float64
	Vector float64
}

// normalized returns the pair scaled to sum to 1.
func (w Weights) normalized() (float64, float64) {
	b, v := w.BM25, w.Vector
	if b < 0 {
		b = 0
	}
	if v < 0 {
		v = 0
	}
	if b == 0 && v == 0 {
		b, v = DefaultBM25Weight, DefaultVectorWeight
	}
	sum := b + v
	return b / sum, v / sum
}

// Fuse merges the two modality rankings into one combined ranking.
//
// Every document id in either input appears exactly once. A score
// missing from one modality counts as 0. Equal combined scores keep
// the incoming vector order; ids the vector ranking never saw sort
// after it in lexical-rank order.
func Fuse(bm25, vector []Hit, w Weights) []SearchResult {
	if len(bm25) == 0 && len(vector) == 0 {
		return nil
	}
	wb, wv := w.normalized()

	type slot struct {
		res   SearchResult
		order int
	}
	byID := make(map[string]*slot, len(vector)+len(bm25))
	slots := make([]*slot, 0, len(vector)+len(bm25))

	for _, h := range vector {
		if _, dup := byID[h.ID]; dup {
			continue
		}
		s := &slot{
			res:   SearchResult{ID: h.ID, Metadata: h.Metadata, VectorScore: h.Score},
			order: len(slots),
		}
		byID[h.ID] = s
		slots = append(slots, s)
	}
	for _, h := range bm25 {
		s, ok := byID[h.ID]
		if !ok {
			s = &slot{
				res:   SearchResult{ID: h.ID, Metadata: h.Metadata},
				order: len(slots),
			}
			byID[h.ID] = s
			slots = append(slots, s)
		}
		s.res.BM25Score = h.Score
	}

	for _, s := range slots {
		s.res.CombinedScore = wb*s.res.BM25Score + wv*s.res.VectorScore
		s.res.Score = s.res.CombinedScore
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].res.CombinedScore != slots[j].res.CombinedScore {
			return slots[i].res.CombinedScore > slots[j].res.CombinedScore
		}
		return slots[i].order < slots[j].order
	})

	out := make([]SearchResult, len(slots))
	for i, s := range slots {
		out[i] = s.res
	}
	return out
}
