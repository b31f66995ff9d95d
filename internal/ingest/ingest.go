// Package ingest turns raw inputs into indexed chunks: it splits document
// text, batch-embeds the chunk texts, and inserts everything into the
// vector index in one call. File inputs go through format-specific
// extractors first (see file.go).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/docquery/docquery/internal/chunk"
	"github.com/docquery/docquery/internal/genai"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/log"
)

// Sentinel errors for ingestion.
var (
	// ErrMetadataCount indicates the metadata slice does not line up with
	// the texts it annotates.
	ErrMetadataCount = errors.New("metadata count does not match text count")

	// ErrNoDocuments indicates an ingest call with nothing to ingest.
	ErrNoDocuments = errors.New("no documents to ingest")
)

// Document is one logical unit of ingestable text with its provenance
// metadata (source identifier, page number, extraction method).
type Document struct {
	Text     string
	Metadata map[string]any
}

// Config contains required parameters for a Pipeline.
type Config struct {
	Embedder ai.Embedder
	Index    index.Index
	Logger   log.Logger

	ChunkSize    int // zero uses chunk.DefaultSize
	ChunkOverlap int // zero uses chunk.DefaultOverlap
}

// Pipeline chunks, embeds, and indexes documents. It is stateless apart
// from its configuration and safe for concurrent use.
type Pipeline struct {
	embedder ai.Embedder
	index    index.Index
	logger   log.Logger
	size     int
	overlap  int
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	size := cfg.ChunkSize
	if size == 0 {
		size = chunk.DefaultSize
	}
	overlap := cfg.ChunkOverlap
	if overlap == 0 {
		overlap = chunk.DefaultOverlap
	}
	if err := (chunk.Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		logger:   cfg.Logger,
		size:     size,
		overlap:  overlap,
	}, nil
}

// Ingest splits each document into chunks, embeds every chunk text in one
// batch, and inserts all (chunk, embedding) pairs into the index in a
// single call. Returns the number of chunks created.
//
// Failure is atomic from the caller's point of view: if embedding or
// insertion fails, nothing is indexed and the error is returned outright.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, ErrNoDocuments
	}

	var chunks []index.Chunk
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		offset := 0
		for text := range chunk.Split(doc.Text, p.size, p.overlap) {
			meta := make(map[string]any, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk_offset"] = offset
			chunks = append(chunks, index.Chunk{Text: text, Metadata: meta})
			offset++
		}
	}
	if len(chunks) == 0 {
		return 0, ErrNoDocuments
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := genai.EmbedTexts(ctx, p.embedder, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if err := p.index.Insert(ctx, chunks, embeddings); err != nil {
		return 0, fmt.Errorf("inserting %d chunks: %w", len(chunks), err)
	}

	p.logger.Info("documents ingested",
		"documents", len(docs),
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// TextDocuments wraps raw strings 1:1 into Documents. metadatas may be nil;
// if non-nil its length must match texts.
func TextDocuments(texts []string, metadatas []map[string]any) ([]Document, error) {
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("%w: %d metadatas for %d texts",
			ErrMetadataCount, len(metadatas), len(texts))
	}

	docs := make([]Document, len(texts))
	for i, t := range texts {
		meta := map[string]any{"type": "text", "index": i}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				meta[k] = v
			}
		}
		docs[i] = Document{Text: t, Metadata: meta}
	}
	return docs, nil
}
