package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// bootstrapText marks the placeholder entry a fresh (or cleared) Memory index
// holds so it is never degenerate-empty. The placeholder is excluded from
// search results.
const bootstrapText = "empty knowledge base placeholder"

// entry is one stored vector with its chunk and insertion sequence number.
type entry struct {
	seq       uint64
	embedding []float32
	chunk     Chunk
	bootstrap bool
}

// Memory is an in-process Index using brute-force cosine similarity.
//
// The dimension is fixed at construction and must match between ingestion
// and query; a mismatch is a configuration error surfaced as
// ErrDimensionMismatch.
//
// Memory is safe for concurrent use. Inserts take the write lock for the
// whole batch, so a concurrent Search sees either none or all of a batch.
type Memory struct {
	mu     sync.RWMutex
	dim    int
	seq    uint64
	items  []entry
	logger *slog.Logger
}

// NewMemory creates an in-memory index for vectors of the given dimension.
// The index starts with a bootstrap placeholder entry so search is always
// well-defined, even before the first insert.
func NewMemory(dim int, logger *slog.Logger) (*Memory, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Memory{dim: dim, logger: logger}
	m.reset()
	return m, nil
}

// reset restores the bootstrap-only state. Caller must hold mu.
func (m *Memory) reset() {
	m.items = m.items[:0]
	m.seq = 0
	m.items = append(m.items, entry{
		seq:       m.nextSeq(),
		embedding: make([]float32, m.dim),
		chunk:     Chunk{Text: bootstrapText},
		bootstrap: true,
	})
}

func (m *Memory) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// Insert appends the batch under a single write lock (atomic visibility).
func (m *Memory) Insert(_ context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrDimensionMismatch, len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != m.dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, index expects %d",
				ErrDimensionMismatch, i, len(emb), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range chunks {
		m.items = append(m.items, entry{
			seq:       m.nextSeq(),
			embedding: embeddings[i],
			chunk:     chunks[i],
		})
	}

	m.logger.Debug("inserted batch", "chunks", len(chunks), "total", len(m.items)-1)
	return nil
}

// Search returns the top-k entries by cosine similarity, descending.
// Ties rank by insertion order, earlier first. The bootstrap placeholder is
// never returned; an index holding only the placeholder yields an empty
// result, not an error.
func (m *Memory) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), m.dim)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		seq   uint64
		score float32
		chunk Chunk
	}

	candidates := make([]scored, 0, len(m.items))
	for _, it := range m.items {
		if it.bootstrap {
			continue
		}
		candidates = append(candidates, scored{
			seq:   it.seq,
			score: cosineSimilarity(query, it.embedding),
			chunk: it.chunk,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]Hit, 0, k)
	for _, c := range candidates[:k] {
		hits = append(hits, Hit{Chunk: c.chunk, Score: c.score})
	}
	return hits, nil
}

// Clear wipes every real entry and restores the bootstrap placeholder.
// The index is immediately ready for new inserts and searches.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.logger.Debug("cleared index")
	return nil
}

// Len reports the number of real (non-bootstrap) entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items) - 1
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
