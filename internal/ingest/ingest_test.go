package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docquery/docquery/internal/genai"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/testutil"
)

const testDim = 8

func newPipeline(t *testing.T) (*ingest.Pipeline, *testutil.MockSetup, *index.Memory) {
	t.Helper()

	mocks := testutil.SetupMocks(t, testDim, "ok")
	idx, err := index.NewMemory(testDim, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	p, err := ingest.NewPipeline(ingest.Config{
		Embedder:     mocks.AIEmbedder,
		Index:        idx,
		Logger:       log.NewNop(),
		ChunkSize:    50,
		ChunkOverlap: 10,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, mocks, idx
}

func TestIngestChunksAndIndexes(t *testing.T) {
	p, _, idx := newPipeline(t)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 5)
	docs := []ingest.Document{{
		Text:     text,
		Metadata: map[string]any{"source": "test.txt"},
	}}

	n, err := p.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n < 2 {
		t.Fatalf("chunks created = %d, want at least 2 for %d chars", n, len(text))
	}
	if got := idx.Len(); got != n {
		t.Fatalf("index holds %d chunks, Ingest reported %d", got, n)
	}
}

func TestIngestChunkMetadata(t *testing.T) {
	p, mocks, idx := newPipeline(t)

	text := strings.Repeat("alpha beta gamma delta ", 6)
	docs := []ingest.Document{{
		Text:     text,
		Metadata: map[string]any{"source": "a.txt"},
	}}

	n, err := p.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	query, err := genai.EmbedText(context.Background(), mocks.AIEmbedder, "anything")
	if err != nil {
		t.Fatalf("embedding query: %v", err)
	}
	results, err := idx.Search(context.Background(), query, n)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	seen := make(map[int]bool)
	for _, r := range results {
		if r.Chunk.Metadata["source"] != "a.txt" {
			t.Fatalf("chunk missing source metadata: %v", r.Chunk.Metadata)
		}
		off, ok := r.Chunk.Metadata["chunk_offset"].(int)
		if !ok {
			t.Fatalf("chunk_offset missing or not int: %v", r.Chunk.Metadata["chunk_offset"])
		}
		seen[off] = true
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Fatalf("no chunk with offset %d among %d results", i, len(results))
		}
	}
}

func TestIngestEmbeddingFailureIndexesNothing(t *testing.T) {
	p, mocks, idx := newPipeline(t)
	mocks.Embedder.FailWith(errors.New("embedder down"))

	docs := []ingest.Document{{Text: "some text to ingest"}}
	if _, err := p.Ingest(context.Background(), docs); err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if idx.Len() != 0 {
		t.Fatalf("index holds %d chunks after failed ingest, want 0", idx.Len())
	}
}

func TestIngestNoDocuments(t *testing.T) {
	p, _, _ := newPipeline(t)

	if _, err := p.Ingest(context.Background(), nil); !errors.Is(err, ingest.ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}

	// Whitespace-only text produces no chunks either.
	docs := []ingest.Document{{Text: "   "}}
	if _, err := p.Ingest(context.Background(), docs); !errors.Is(err, ingest.ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments for empty text, got %v", err)
	}
}

func TestTextDocuments(t *testing.T) {
	docs, err := ingest.TextDocuments(
		[]string{"first", "second"},
		[]map[string]any{{"tag": "a"}, {"tag": "b"}},
	)
	if err != nil {
		t.Fatalf("TextDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].Text != "first" || docs[1].Text != "second" {
		t.Fatalf("texts not preserved: %+v", docs)
	}
	if docs[0].Metadata["type"] != "text" || docs[0].Metadata["index"] != 0 {
		t.Fatalf("base metadata missing: %v", docs[0].Metadata)
	}
	if docs[1].Metadata["tag"] != "b" {
		t.Fatalf("caller metadata not merged: %v", docs[1].Metadata)
	}
}

func TestTextDocumentsMetadataMismatch(t *testing.T) {
	_, err := ingest.TextDocuments([]string{"one", "two"}, []map[string]any{{"k": "v"}})
	if !errors.Is(err, ingest.ErrMetadataCount) {
		t.Fatalf("expected ErrMetadataCount, got %v", err)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	mocks := testutil.SetupMocks(t, testDim, "ok")
	idx, err := index.NewMemory(testDim, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	cases := []struct {
		name string
		cfg  ingest.Config
	}{
		{"missing embedder", ingest.Config{Index: idx, Logger: log.NewNop()}},
		{"missing index", ingest.Config{Embedder: mocks.AIEmbedder, Logger: log.NewNop()}},
		{"missing logger", ingest.Config{Embedder: mocks.AIEmbedder, Index: idx}},
		{"overlap >= size", ingest.Config{
			Embedder: mocks.AIEmbedder, Index: idx, Logger: log.NewNop(),
			ChunkSize: 10, ChunkOverlap: 10,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingest.NewPipeline(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
