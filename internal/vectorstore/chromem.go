// Package vectorstore keeps chunk vectors in process memory.
package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/philippgille/chromem-go"
)

const (
	metaIndex = "chunk_index"
	metaPage  = "page"
	metaStart = "start"
	metaEnd   = "end"
)

// ChromemProvider creates one chromem collection per index.
type ChromemProvider struct {
	db *chromem.DB
}

// NewChromemProvider creates a provider backed by an in-memory chromem DB.
func NewChromemProvider() *ChromemProvider {
	return &ChromemProvider{db: chromem.NewDB()}
}

// NewStore creates an empty collection for indexID.
func (p *ChromemProvider) NewStore(ctx context.Context, indexID string) (service.ChunkStore, error) {
	name := "index-" + indexID
	// embedding func is never used: every document and query carries its vector
	collection, err := p.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return &ChromemStore{db: p.db, collection: collection}, nil
}

// Collections returns the number of live collections.
func (p *ChromemProvider) Collections() int {
	return len(p.db.ListCollections())
}

// ChromemStore is the vectors of one index.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Insert adds chunks with their vectors.
func (s *ChromemStore) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID(),
			Content: c.Content,
			Metadata: map[string]string{
				metaIndex: strconv.Itoa(c.Index),
				metaPage:  strconv.Itoa(c.Page),
				metaStart: strconv.Itoa(c.Start),
				metaEnd:   strconv.Itoa(c.End),
			},
			Embedding: vectors[i],
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to limit chunks by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	n := min(limit, s.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk, err := chunkFromResult(r)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: r.Similarity})
	}
	return out, nil
}

// Drop deletes the collection.
func (s *ChromemStore) Drop(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.collection.Name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func chunkFromResult(r chromem.Result) (domain.Chunk, error) {
	c := domain.Chunk{Content: r.Content}
	fields := []struct {
		key string
		dst *int
	}{
		{metaIndex, &c.Index},
		{metaPage, &c.Page},
		{metaStart, &c.Start},
		{metaEnd, &c.End},
	}
	for _, f := range fields {
		v, err := strconv.Atoi(r.Metadata[f.key])
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("document %s has bad %s metadata: %w", r.ID, f.key, err)
		}
		*f.dst = v
	}
	return c, nil
}
