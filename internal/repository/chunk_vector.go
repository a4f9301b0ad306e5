package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkVectorRepository stores chunk embeddings in pgvector.
type ChunkVectorRepository struct {
	db dbtx
}

func NewChunkVectorRepository(pool *pgxpool.Pool) *ChunkVectorRepository {
	return &ChunkVectorRepository{db: pool}
}

// Insert writes all chunks of an index in one transaction.
func (r *ChunkVectorRepository) Insert(ctx context.Context, indexID string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for i, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunk_vectors
				(index_id, chunk_index, page, start_offset, end_offset, content, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8)`,
			indexID,
			c.Index,
			c.Page,
			c.Start,
			c.End,
			c.Content,
			pgvector.NewVector(vectors[i]),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit(ctx)
}

// Search ranks the chunks of one index by cosine similarity. Ties are
// broken by chunk order.
func (r *ChunkVectorRepository) Search(ctx context.Context, indexID string, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_index, page, start_offset, end_offset, content,
		        1 - (embedding <=> $2) AS score
		   FROM chunk_vectors
		  WHERE index_id = $1
		  ORDER BY embedding <=> $2, chunk_index
		  LIMIT $3`,
		indexID, pgvector.NewVector(vector), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var (
			c     domain.Chunk
			score float64
		)
		if err := rows.Scan(&c.Index, &c.Page, &c.Start, &c.End, &c.Content, &score); err != nil {
			return nil, err
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: float32(score)})
	}
	return results, rows.Err()
}

// Count returns the number of stored chunks of an index.
func (r *ChunkVectorRepository) Count(ctx context.Context, indexID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM chunk_vectors WHERE index_id = $1`, indexID).Scan(&n)
	return n, err
}

// Delete removes every chunk of an index.
func (r *ChunkVectorRepository) Delete(ctx context.Context, indexID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE index_id = $1`, indexID)
	return err
}

// PurgeOlderThan removes chunks written before cutoff. Sessions live in
// process memory, so rows left behind by a previous process are orphans.
func (r *ChunkVectorRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// NewStore implements service.ChunkStoreProvider.
func (r *ChunkVectorRepository) NewStore(ctx context.Context, indexID string) (service.ChunkStore, error) {
	return &pgChunkStore{repo: r, indexID: indexID}, nil
}

type pgChunkStore struct {
	repo    *ChunkVectorRepository
	indexID string
}

func (s *pgChunkStore) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	return s.repo.Insert(ctx, s.indexID, chunks, vectors)
}

func (s *pgChunkStore) Search(ctx context.Context, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	return s.repo.Search(ctx, s.indexID, vector, limit)
}

func (s *pgChunkStore) Drop(ctx context.Context) error {
	return s.repo.Delete(ctx, s.indexID)
}
