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
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

// ChunkClassName is the Weaviate class holding project chunks.
const ChunkClassName = "DebugChunk"

// weaviateBatchSize is the number of objects sent per batch import.
const weaviateBatchSize = 100

// WeaviateBackend stores the chunk corpus in a running Weaviate
// instance and answers both modalities over GraphQL. Vectors are
// supplied by the caller; the class declares no vectorizer.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateBackend struct {
	client *weaviate.Client
	log    *logging.Logger

	mu   sync.RWMutex
	docs map[string]Document
}

// NewWeaviateBackend connects to a Weaviate instance by URL. A bare
// host:port defaults to http.
func NewWeaviateBackend(url string, log *logging.Logger) (*WeaviateBackend, error) {
	if log == nil {
		log = logging.Default()
	}
	cfg := weaviate.Config{Host: url, Scheme: "http"}
	switch {
	case strings.HasPrefix(url, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		cfg.Host = strings.TrimPrefix(url, "http://")
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	return &WeaviateBackend{
		client: client,
		log:    log,
		docs:   make(map[string]Document),
	}, nil
}

// chunkSchema returns the class definition for the chunk corpus.
func chunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ChunkClassName,
		Description: "Overlapping source chunks of the debugged project",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "docId",
				DataType:        []string{"text"},
				Description:     "Chunk identifier: relative path plus part number",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "filePath",
				DataType:        []string{"text"},
				Description:     "Slash-relative path inside the project",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "fileName",
				DataType:     []string{"text"},
				Description:  "Base name of the file",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Chunk body",
				Tokenization: "word",
			},
			{
				Name:        "startLine",
				DataType:    []string{"int"},
				Description: "First line of the chunk, 1-based",
			},
			{
				Name:        "endLine",
				DataType:    []string{"int"},
				Description: "Last line of the chunk",
			},
		},
	}
}

// EnsureSchema creates the chunk class if it does not exist. Idempotent.
func (w *WeaviateBackend) EnsureSchema(ctx context.Context) error {
	_, err := w.client.Schema().ClassGetter().WithClassName(ChunkClassName).Do(ctx)
	if err == nil {
		w.log.Debug("chunk schema already exists", "class", ChunkClassName)
		return nil
	}
	if err := w.client.Schema().ClassCreator().WithClass(chunkSchema()).Do(ctx); err != nil {
		return fmt.Errorf("creating chunk schema: %w", err)
	}
	w.log.Info("chunk schema created", "class", ChunkClassName)
	return nil
}

// Index batch-imports chunks with their vectors. A chunk without a
// vector is still imported and stays reachable lexically.
func (w *WeaviateBackend) Index(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}

	indexed := 0
	for i := 0; i < len(docs); i += weaviateBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+weaviateBatchSize, len(docs))
		batch := docs[i:end]

		objects := make([]*models.Object, len(batch))
		for j, doc := range batch {
			obj := &models.Object{
				Class: ChunkClassName,
				Properties: map[string]interface{}{
					"docId":     doc.ID,
					"filePath":  doc.Metadata.FilePath,
					"fileName":  doc.Metadata.FileName,
					"content":   doc.Content,
					"startLine": doc.Metadata.StartLine,
					"endLine":   doc.Metadata.EndLine,
				},
			}
			if idx := i + j; idx < len(vectors) && len(vectors[idx]) > 0 {
				obj.Vector = models.C11yVector(vectors[idx])
			}
			objects[j] = obj
		}

		result, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch import failed: %w", err)
		}
		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors == nil {
				indexed++
			}
		}
	}

	w.mu.Lock()
	for _, doc := range docs {
		w.docs[doc.ID] = doc
	}
	w.mu.Unlock()

	w.log.Debug("chunks imported", "sent", len(docs), "accepted", indexed)
	return nil
}

// IndexSize is the number of chunks this process has imported. A
// pre-populated external instance counts as empty until Index runs.
func (w *WeaviateBackend) IndexSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.docs)
}

// Document resolves a chunk id imported by this process.
func (w *WeaviateBackend) Document(id string) (Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[id]
	return doc, ok
}

// BM25Search ranks chunks lexically over the content and fileName
// properties. Weaviate reports the BM25 score as a string under
// _additional.
func (w *WeaviateBackend) BM25Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	bm25 := w.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("content", "fileName")

	result, err := w.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(chunkFields(graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "score"}},
		})...).
		WithBM25(bm25).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("bm25 search failed: %w", err)
	}
	return parseHits(result, "score")
}

// VectorSearch ranks chunks by similarity to an embedding. Certainty
// is used for the score since it stays in [0,1] regardless of the
// instance's distance metric.
func (w *WeaviateBackend) VectorSearch(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	result, err := w.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(chunkFields(graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "certainty"}},
		})...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return parseHits(result, "certainty")
}

// chunkFields lists the chunk properties plus one _additional field.
func chunkFields(additional graphql.Field) []graphql.Field {
	return []graphql.Field{
		{Name: "docId"},
		{Name: "filePath"},
		{Name: "fileName"},
		{Name: "startLine"},
		{Name: "endLine"},
		additional,
	}
}

// parseHits converts a GraphQL Get response into ranking hits, reading
// the score from the named _additional field.
func parseHits(result *models.GraphQLResponse, scoreField string) ([]Hit, error) {
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", result.Errors[0].Message)
	}
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[ChunkClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	hits := make([]Hit, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Hit{
			ID: getString(m, "docId"),
			Metadata: Metadata{
				FilePath:  getString(m, "filePath"),
				FileName:  getString(m, "fileName"),
				StartLine: getInt(m, "startLine"),
				EndLine:   getInt(m, "endLine"),
			},
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			hit.Score = getFloat(additional, scoreField)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// getString safely extracts a string from a decoded GraphQL object.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getFloat accepts the number and string forms Weaviate uses for
// _additional fields.
func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// getInt truncates the numeric forms Weaviate uses for int properties.
func getInt(m map[string]interface{}, key string) int {
	return int(getFloat(m, key))
}
