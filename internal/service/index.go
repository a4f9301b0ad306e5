package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of chunks retrieved when the caller does not say.
const DefaultTopK = 8

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore holds the vectors of exactly one index.
type ChunkStore interface {
	Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	// Search returns up to limit chunks ordered by descending similarity.
	Search(ctx context.Context, vector []float32, limit int) ([]domain.ScoredChunk, error)
	Drop(ctx context.Context) error
}

// ChunkStoreProvider creates an empty store for every index build.
type ChunkStoreProvider interface {
	NewStore(ctx context.Context, indexID string) (ChunkStore, error)
}

// IndexConfig controls index builds.
type IndexConfig struct {
	Concurrency  int
	EmbedTimeout time.Duration
}

// DefaultIndexConfig provides sane defaults for index builds.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Concurrency:  4,
		EmbedTimeout: 30 * time.Second,
	}
}

// IndexBuilder embeds chunks and writes them into a fresh store.
type IndexBuilder struct {
	embedder EmbeddingClient
	stores   ChunkStoreProvider
	cfg      IndexConfig
}

// NewIndexBuilder creates a new IndexBuilder instance
func NewIndexBuilder(embedder EmbeddingClient, stores ChunkStoreProvider, cfg IndexConfig) *IndexBuilder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultIndexConfig().Concurrency
	}
	return &IndexBuilder{
		embedder: embedder,
		stores:   stores,
		cfg:      cfg,
	}
}

// Index is the searchable form of one document. It keeps the embedder that
// produced its vectors so queries are always embedded the same way.
type Index struct {
	id       string
	store    ChunkStore
	embedder EmbeddingClient
	timeout  time.Duration
	size     int
	dims     int
	builtAt  time.Time
}

// ID returns the index identifier.
func (ix *Index) ID() string { return ix.id }

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Dimensions returns the vector dimension of the index, 0 when empty.
func (ix *Index) Dimensions() int { return ix.dims }

// BuiltAt returns when the build finished.
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Build embeds every chunk and stores the vectors. It either returns a
// complete index or an IndexBuildFailure and no index at all.
func (b *IndexBuilder) Build(ctx context.Context, indexID string, chunks []domain.Chunk) (*Index, error) {
	ctx, span := telemetry.StartSpan(ctx, "index.build", telemetry.SpanAttributes{IndexID: indexID})
	defer span.End()
	span.SetData("chunks", len(chunks))

	start := time.Now()
	vectors, err := b.embedAll(ctx, chunks)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	dims := 0
	for i, v := range vectors {
		if i == 0 {
			dims = len(v)
			continue
		}
		if len(v) != dims {
			err := domain.NewDomainErrorWithCause(domain.ErrCodeIndexBuild, "index build failed",
				domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingMismatch, "embedding dimensions differ between chunks",
					fmt.Errorf("chunk %d has %d dimensions, chunk 0 has %d", chunks[i].Index, len(v), dims)))
			span.SetError(err)
			return nil, err
		}
	}

	ix := &Index{
		id:       indexID,
		embedder: b.embedder,
		timeout:  b.cfg.EmbedTimeout,
		size:     len(chunks),
		dims:     dims,
	}

	if len(chunks) > 0 {
		store, err := b.stores.NewStore(ctx, indexID)
		if err != nil {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeIndexBuild, "failed to create chunk store", err)
			span.SetError(err)
			return nil, err
		}
		if err := store.Insert(ctx, chunks, vectors); err != nil {
			if dropErr := store.Drop(context.WithoutCancel(ctx)); dropErr != nil {
				log.Warn().Err(dropErr).Str("index_id", indexID).Msg("failed to drop partial chunk store")
			}
			err = domain.NewDomainErrorWithCause(domain.ErrCodeIndexBuild, "failed to store chunk vectors", err)
			span.SetError(err)
			return nil, err
		}
		ix.store = store
	}

	ix.builtAt = time.Now().UTC()
	log.Info().
		Str("index_id", indexID).
		Int("chunks", len(chunks)).
		Int("dimensions", dims).
		Dur("took", time.Since(start)).
		Msg("index built")

	return ix, nil
}

func (b *IndexBuilder) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	var (
		mu       sync.Mutex
		failures []error
	)

	for i, c := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			vec, err := embedWithTimeout(gctx, b.embedder, b.cfg.EmbedTimeout, c.Content)
			if err != nil {
				// siblings cancelled after the first failure are not failures of their own
				if errors.Is(err, context.Canceled) && ctx.Err() == nil {
					return err
				}
				failure := domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding,
					fmt.Sprintf("failed to embed chunk %d (page %d)", c.Index, c.Page), err)
				mu.Lock()
				failures = append(failures, failure)
				mu.Unlock()
				return failure
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cause := err
		if len(failures) > 0 {
			cause = errors.Join(failures...)
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeIndexBuild, "index build failed", cause)
	}

	return vectors, nil
}

func embedWithTimeout(ctx context.Context, embedder EmbeddingClient, timeout time.Duration, text string) ([]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return embedder.GenerateEmbedding(ctx, text)
}

// embedQuery embeds text with the embedder the index was built with.
func (ix *Index) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := embedWithTimeout(ctx, ix.embedder, ix.timeout, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, "failed to embed query", err)
	}
	return vec, nil
}

// Query ranks the indexed chunks against vector and returns at most k of
// them by descending score. Equal scores keep document order.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if ix == nil {
		return nil, domain.ErrNoIndex
	}
	if ix.size == 0 || ix.store == nil {
		return nil, domain.ErrEmptyIndex
	}
	if len(vector) != ix.dims {
		return nil, domain.NewDomainErrorWithCause(domain.ErrDimensionChanged.Code, domain.ErrDimensionChanged.Message,
			fmt.Errorf("query has %d dimensions, index has %d", len(vector), ix.dims))
	}
	if k <= 0 {
		k = DefaultTopK
	}

	// ask for everything so ties are ordered here rather than by the backend
	results, err := ix.store.Search(ctx, vector, ix.size)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "vector search failed", err)
	}

	rankScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Drop releases the backing store.
func (ix *Index) Drop(ctx context.Context) error {
	if ix == nil || ix.store == nil {
		return nil
	}
	return ix.store.Drop(ctx)
}

func rankScored(results []domain.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
