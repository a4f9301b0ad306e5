//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkVectorRepository_InsertSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")

	repo := NewChunkVectorRepository(pool)
	indexID := uuid.NewString()

	chunks := []domain.Chunk{
		{Index: 0, Page: 1, Start: 0, End: 5, Content: "alpha"},
		{Index: 1, Page: 2, Start: 0, End: 4, Content: "beta"},
		{Index: 2, Page: 3, Start: 0, End: 5, Content: "gamma"},
		{Index: 3, Page: 3, Start: 3, End: 9, Content: "gamma2"},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0, 0, 1}}
	require.NoError(t, repo.Insert(ctx, indexID, chunks, vectors))

	n, err := repo.Count(ctx, indexID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	results, err := repo.Search(ctx, indexID, []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[0].Chunk.Index, "ties are ordered by chunk index")
	assert.Equal(t, 3, results[1].Chunk.Index)
	assert.Equal(t, chunks[2], results[0].Chunk)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.InDelta(t, 0.0, results[2].Score, 1e-5)

	other, err := repo.Search(ctx, uuid.NewString(), []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, repo.Delete(ctx, indexID))
	n, err = repo.Count(ctx, indexID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChunkVectorRepository_InsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")

	repo := NewChunkVectorRepository(pool)
	indexID := uuid.NewString()

	// duplicate chunk index violates the primary key on the second row
	chunks := []domain.Chunk{
		{Index: 0, Page: 1, End: 1, Content: "a"},
		{Index: 0, Page: 1, End: 1, Content: "b"},
	}
	err := repo.Insert(ctx, indexID, chunks, [][]float32{{1, 0}, {0, 1}})
	require.Error(t, err)

	n, err := repo.Count(ctx, indexID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChunkVectorRepository_PurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	require.NoError(t, testutil.TruncateAll(ctx, pool))

	repo := NewChunkVectorRepository(pool)
	require.NoError(t, repo.Insert(ctx, "old", []domain.Chunk{{Index: 0, Page: 1, End: 1, Content: "x"}}, [][]float32{{1, 1}}))

	purged, err := repo.PurgeOlderThan(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestChunkVectorRepository_AsIndexBackend(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")

	embedder := testutil.NewHashEmbedder(64)
	builder := service.NewIndexBuilder(embedder, NewChunkVectorRepository(pool), service.DefaultIndexConfig())
	chunks := service.NewChunker(service.DefaultChunkConfig()).Split([]domain.Page{
		{Number: 1, Text: "Opening hours are nine to five."},
		{Number: 2, Text: "The warranty period is 24 months."},
	})

	ix, err := builder.Build(ctx, uuid.NewString(), chunks)
	require.NoError(t, err)

	results, err := service.NewRetriever(service.DefaultTopK).Retrieve(ctx, "how long is the warranty period", ix, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Chunk.Page)

	require.NoError(t, ix.Drop(ctx))
}
