//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/cloo-solutions/pdfqa/internal/database"
	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	require.NoError(t, database.RunMigrations(pc.ConnectionString(), "../../migrations"))
	// second run is a no-op
	require.NoError(t, database.RunMigrations(pc.ConnectionString(), "../../migrations"))

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 4})
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'chunk_vectors')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewPool_BadURL(t *testing.T) {
	_, err := database.NewPool(context.Background(), database.Config{URL: "://nope"})
	assert.Error(t, err)
}
