package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/database"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	// RustFSCredential is both the access key and secret of the test RustFS.
	RustFSCredential = "rustfsadmin"
)

// container is a started testcontainer plus its mapped address.
type container struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func (c *container) Terminate(context.Context) error {
	return testcontainers.TerminateContainer(c.Container)
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) container {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host of %s: %v", req.Image, err)
	}
	port, err := c.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		t.Fatalf("port of %s: %v", req.Image, err)
	}
	return container{Container: c, Host: host, Port: port.Port()}
}

// PostgresContainer is a pgvector-enabled Postgres for chunk vector tests.
type PostgresContainer struct {
	container
	User     string
	Password string
	Database string
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pdfqa",
			"POSTGRES_PASSWORD": "pdfqa",
			"POSTGRES_DB":       "pdfqa",
		},
		// postgres logs "ready" once for the init server and once for the real one
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	})
	return &PostgresContainer{container: c, User: "pdfqa", Password: "pdfqa", Database: "pdfqa"}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// RustFSContainer is the S3-compatible store used for staged uploads.
type RustFSContainer struct {
	container
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSCredential,
			"RUSTFS_SECRET_KEY": RustFSCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{container: c}
}

func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// NewTestPool migrates the container's database with the same golang-migrate
// path the server uses, then opens a pool closed at test cleanup.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	url := pc.ConnectionString()

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		if err = database.RunMigrations(url, migrationsDir); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: url, MaxConns: 8})
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TruncateAll empties every table between tests that share a container.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE chunk_vectors"); err != nil {
		return fmt.Errorf("truncate chunk_vectors: %w", err)
	}
	return nil
}
