// Package index stores chunk embeddings and serves k-nearest-neighbor
// similarity search.
//
// Two implementations satisfy the Index contract:
//
//   - Memory: an in-process store using brute-force cosine similarity.
//     Zero infrastructure; contents are lost on restart.
//   - Postgres: pgvector-backed, durable, shares the same semantics.
//
// Both guarantee atomic batch visibility (a concurrent search never observes
// half of an inserted batch) and a stable tie-break: equal similarity scores
// rank by insertion order, earlier first.
package index

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch indicates embedding/index configuration drift:
	// batch lengths differ, or a vector's dimension does not match the
	// index's. This is a misconfiguration, not a retryable condition.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidK indicates a non-positive k was passed to Search.
	ErrInvalidK = errors.New("k must be at least 1")
)

// Chunk is the unit of retrieval: a bounded span of source text with
// provenance metadata (source document, page, ingestion type).
// Chunks are immutable once inserted.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Hit is a single search result with its similarity score.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Index is the vector index contract the rest of the system depends on.
//
// Insert appends chunks with their embeddings; len(chunks) must equal
// len(embeddings) and every vector must match the index dimension, else
// ErrDimensionMismatch. The batch becomes visible atomically.
//
// Search returns at most k hits ordered by descending similarity, ties
// broken by insertion order. Fewer than k are returned when the index holds
// fewer entries; an index with no real entries returns an empty, non-nil
// error-free result (documented choice, matching the original system which
// bootstraps its store with a placeholder).
//
// Clear removes every entry; the index accepts inserts and searches
// immediately afterwards.
type Index interface {
	Insert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Clear(ctx context.Context) error
}
