package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/docquery/docquery/internal/log"
)

func newTestIndex(t *testing.T, dim int) *Memory {
	t.Helper()
	m, err := NewMemory(dim, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return m
}

func TestNewMemoryRejectsBadDimension(t *testing.T) {
	if _, err := NewMemory(0, log.NewNop()); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	m := newTestIndex(t, 3)

	hits, err := m.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("empty index returned %d hits", len(hits))
	}
}

func TestSearchOrdering(t *testing.T) {
	m := newTestIndex(t, 2)
	ctx := context.Background()

	// Cosine similarity to the query (1,0): a=1.0, b≈0.707, c=0.0
	chunks := []Chunk{{Text: "c"}, {Text: "a"}, {Text: "b"}}
	embeddings := [][]float32{{0, 1}, {1, 0}, {1, 1}}
	if err := m.Insert(ctx, chunks, embeddings); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hits, err := m.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d", len(hits), len(want))
	}
	for i, w := range want {
		if hits[i].Chunk.Text != w {
			t.Errorf("hit %d = %q, want %q", i, hits[i].Chunk.Text, w)
		}
	}
	if hits[0].Score < hits[1].Score || hits[1].Score < hits[2].Score {
		t.Errorf("scores not descending: %v %v %v", hits[0].Score, hits[1].Score, hits[2].Score)
	}
}

func TestSearchTieBreakByInsertionOrder(t *testing.T) {
	m := newTestIndex(t, 2)
	ctx := context.Background()

	// Identical vectors: scores tie, earlier insert must rank first.
	for i := 0; i < 4; i++ {
		err := m.Insert(ctx,
			[]Chunk{{Text: fmt.Sprintf("entry-%d", i)}},
			[][]float32{{1, 1}},
		)
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	hits, err := m.Search(ctx, []float32{1, 1}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, h := range hits {
		want := fmt.Sprintf("entry-%d", i)
		if h.Chunk.Text != want {
			t.Errorf("hit %d = %q, want %q", i, h.Chunk.Text, want)
		}
	}
}

func TestSearchFewerThanK(t *testing.T) {
	m := newTestIndex(t, 2)
	ctx := context.Background()

	if err := m.Insert(ctx, []Chunk{{Text: "only"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hits, err := m.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}

func TestSearchInvalidK(t *testing.T) {
	m := newTestIndex(t, 2)
	if _, err := m.Search(context.Background(), []float32{1, 0}, 0); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("expected ErrInvalidK, got %v", err)
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	m := newTestIndex(t, 3)
	ctx := context.Background()

	err := m.Insert(ctx, []Chunk{{Text: "x"}}, [][]float32{{1, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("wrong-dimension insert: expected ErrDimensionMismatch, got %v", err)
	}

	err = m.Insert(ctx, []Chunk{{Text: "x"}, {Text: "y"}}, [][]float32{{1, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("length-mismatch insert: expected ErrDimensionMismatch, got %v", err)
	}

	if m.Len() != 0 {
		t.Fatalf("failed inserts left %d entries", m.Len())
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	m := newTestIndex(t, 3)
	if _, err := m.Search(context.Background(), []float32{1, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestClearIsIdempotentAndReusable(t *testing.T) {
	m := newTestIndex(t, 2)
	ctx := context.Background()

	if err := m.Insert(ctx, []Chunk{{Text: "a"}, {Text: "b"}}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := m.Clear(ctx); err != nil {
			t.Fatalf("Clear %d: %v", i, err)
		}
		hits, err := m.Search(ctx, []float32{1, 0}, 5)
		if err != nil {
			t.Fatalf("Search after clear: %v", err)
		}
		if len(hits) != 0 {
			t.Fatalf("search after clear returned %d hits", len(hits))
		}
	}

	// Index accepts new inserts immediately after clear.
	if err := m.Insert(ctx, []Chunk{{Text: "fresh"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Insert after clear: %v", err)
	}
	hits, err := m.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Text != "fresh" {
		t.Fatalf("unexpected hits after reinsert: %+v", hits)
	}
}

// TestConcurrentInsertAtomicVisibility checks that a search never observes
// part of a just-inserted batch.
func TestConcurrentInsertAtomicVisibility(t *testing.T) {
	m := newTestIndex(t, 2)
	ctx := context.Background()

	const batches = 20
	const batchSize = 5

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < batches; i++ {
			chunks := make([]Chunk, batchSize)
			embeddings := make([][]float32, batchSize)
			for j := range chunks {
				chunks[j] = Chunk{Text: fmt.Sprintf("batch-%d-%d", i, j)}
				embeddings[j] = []float32{1, 0}
			}
			if err := m.Insert(ctx, chunks, embeddings); err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hits, err := m.Search(ctx, []float32{1, 0}, batches*batchSize)
			if err != nil {
				t.Errorf("Search: %v", err)
				return
			}
			if len(hits)%batchSize != 0 {
				t.Errorf("observed partial batch: %d hits", len(hits))
				return
			}
		}
	}()

	wg.Wait()

	if m.Len() != batches*batchSize {
		t.Fatalf("index holds %d entries, want %d", m.Len(), batches*batchSize)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Fatalf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
