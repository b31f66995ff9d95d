package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Table schema constants for the chunks table.
// These match db/migrations.
const (
	ChunksTableName = "chunks"
)

// DB is the subset of pgxpool.Pool the Postgres index needs.
// Defined by the consumer so tests can substitute a mock.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a durable Index backed by PostgreSQL + pgvector.
//
// Cosine similarity is computed by the <=> operator (cosine distance);
// the seq bigserial column provides the insertion-order tie-break. Inserts
// run in a single transaction so a concurrent search sees either none or
// all of a batch (atomic batch visibility via MVCC).
type Postgres struct {
	db     DB
	dim    int
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed index for vectors of the given
// dimension. The chunks table must exist (see db.Migrate); its vector
// column dimension is verified against dim so a misconfigured embedder
// fails here instead of on the first insert.
func NewPostgres(ctx context.Context, db DB, dim int, logger *slog.Logger) (*Postgres, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Postgres{db: db, dim: dim, logger: logger}
	if err := p.verifyColumnDimension(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// verifyColumnDimension reads the declared dimension of the embedding
// column. pgvector records it as the column's type modifier.
func (p *Postgres) verifyColumnDimension(ctx context.Context) error {
	rows, err := p.db.Query(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`)
	if err != nil {
		return fmt.Errorf("reading embedding column dimension: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading embedding column dimension: %w", err)
		}
		return fmt.Errorf("reading embedding column dimension: chunks.embedding not found")
	}
	var columnDim int
	if err := rows.Scan(&columnDim); err != nil {
		return fmt.Errorf("scanning embedding column dimension: %w", err)
	}
	if columnDim != p.dim {
		return fmt.Errorf("%w: embedding column is vector(%d), index expects %d",
			ErrDimensionMismatch, columnDim, p.dim)
	}
	return nil
}

// Insert appends the batch inside one transaction.
func (p *Postgres) Insert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrDimensionMismatch, len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != p.dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, index expects %d",
				ErrDimensionMismatch, i, len(emb), p.dim)
		}
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	for i, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (content, embedding, metadata) VALUES ($1, $2, $3)`,
			c.Text, pgvector.NewVector(embeddings[i]), metadata)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}

	p.logger.Debug("inserted batch", "chunks", len(chunks))
	return nil
}

// Search returns the top-k chunks by cosine similarity, descending, ties
// broken by the seq column (earlier inserts first). An empty table yields an
// empty result, consistent with the Memory implementation.
func (p *Postgres) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != p.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), p.dim)
	}

	rows, err := p.db.Query(ctx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 ORDER BY similarity DESC, seq ASC
		 LIMIT $2`,
		pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			content      string
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}

		var metadata map[string]any
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				p.logger.Warn("failed to parse chunk metadata", "error", err)
				metadata = nil
			}
		}

		hits = append(hits, Hit{
			Chunk: Chunk{Text: content, Metadata: metadata},
			Score: float32(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return hits, nil
}

// Clear truncates the chunks table. The seq counter restarts so tie-break
// ordering is reproducible after a clear.
func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `TRUNCATE chunks RESTART IDENTITY`); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	p.logger.Debug("cleared index")
	return nil
}
