//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/api/handlers"
	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/extract"
	"github.com/cloo-solutions/pdfqa/internal/repository"
	"github.com/cloo-solutions/pdfqa/internal/server"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/cloo-solutions/pdfqa/internal/storage"
	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Sessions     *service.SessionService
	Generator    *echoGenerator
	BinaryDir    string
	ConfigHome   string
	HTTPClient   *http.Client
}

// echoGenerator answers with the model name and records every prompt so
// tests can check which chunks reached it.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *echoGenerator) Generate(ctx context.Context, req service.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()

	answer := "answer for " + req.Model.String()
	if req.OnToken != nil {
		for _, tok := range strings.SplitAfter(answer, " ") {
			if err := req.OnToken(ctx, tok); err != nil {
				return "", err
			}
		}
	}
	return answer, nil
}

// Prompts returns every prompt sent so far.
func (g *echoGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// SetupE2EEnv starts pgvector and RustFS containers and serves the API over
// them from an in-process httptest server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "pdfqa-e2e",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("s3 bucket: %v", err)
	}

	generator := &echoGenerator{}
	sessions := newSessionService(pool, s3Client, generator)
	srv := httptest.NewServer(server.NewRouter(server.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(sessions),
		ModelHandler:   handlers.NewModelHandler(domain.DefaultModelName),
		MaxBodyBytes:   6 << 20,
	}))

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    srv.URL,
		ServerCloser: srv.Close,
		S3Client:     s3Client,
		Sessions:     sessions,
		Generator:    generator,
		ConfigHome:   t.TempDir(),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func newSessionService(pool *pgxpool.Pool, s3Client *storage.S3Client, generator service.Generator) *service.SessionService {
	builder := service.NewIndexBuilder(testutil.NewHashEmbedder(64), repository.NewChunkVectorRepository(pool), service.DefaultIndexConfig())

	answerCfg := service.DefaultAnswerConfig()
	answerCfg.CondenseQuestion = false
	answers := service.NewAnswerService(service.NewRetriever(service.DefaultTopK), generator, answerCfg)

	return service.NewSessionService(service.SessionServiceConfig{
		Extractor:        extract.NewPDFExtractor(),
		Builder:          builder,
		Answers:          answers,
		Storage:          s3Client,
		DefaultModel:     domain.DefaultModelName,
		MaxDocumentBytes: 5 << 20,
	})
}

// Cleanup stops the server and both containers.
func (e *E2ETestEnv) Cleanup() {
	e.ServerCloser()
	_ = e.RustFSC.Terminate(e.Ctx)
	_ = e.PostgresC.Terminate(e.Ctx)
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries compiles cmd/pdfqa for the CLI tests.
func (e *E2ETestEnv) BuildBinaries() {
	dir, err := os.MkdirTemp("", "pdfqa-e2e-*")
	if err != nil {
		e.T.Fatalf("temp dir: %v", err)
	}
	e.BinaryDir = dir

	build := exec.Command("go", "build", "-o", filepath.Join(dir, "pdfqa"), "./cmd/pdfqa")
	build.Dir = "../.."
	if out, err := build.CombinedOutput(); err != nil {
		e.T.Fatalf("build pdfqa: %v\n%s", err, out)
	}
}

// RunCLI runs pdfqa against the test server. Stored CLI state lives under
// ConfigHome so runs share the current session.
func (e *E2ETestEnv) RunCLI(args ...string) (string, error) {
	cli := exec.Command(filepath.Join(e.BinaryDir, "pdfqa"), args...)
	cli.Env = append(os.Environ(),
		"PDFQA_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+e.ConfigHome,
		"HOME="+e.ConfigHome,
		"PDFQA_SESSION=",
	)
	out, err := cli.CombinedOutput()
	return string(out), err
}

// APIResponse is the decoded envelope plus the HTTP status. Error replies
// are returned together with a non-nil error so tests can check the code.
type APIResponse struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.call(http.MethodGet, path, nil)
}

func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	return e.call(http.MethodPost, path, body)
}

func (e *E2ETestEnv) Put(path string, body any) (*APIResponse, error) {
	return e.call(http.MethodPut, path, body)
}

func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.call(http.MethodDelete, path, nil)
}

func (e *E2ETestEnv) call(method, path string, body any) (*APIResponse, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, e.ServerURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req)
}

// UploadPDF posts content as the multipart "file" field.
func (e *E2ETestEnv) UploadPDF(sessionID, filename string, content []byte) (*APIResponse, error) {
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/sessions/"+sessionID+"/document", &form)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

func (e *E2ETestEnv) send(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &APIResponse{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("HTTP %d, undecodable body %q: %w", resp.StatusCode, raw, err)
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, out.Error, out.Code)
	}
	return out, nil
}

// UploadFile PUTs content to a presigned storage URL.
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("presigned PUT returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// CreateSession opens a session with the default model.
func (e *E2ETestEnv) CreateSession() string {
	resp, err := e.Post("/sessions", nil)
	if err != nil {
		e.T.Fatalf("create session: %v", err)
	}
	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &session); err != nil {
		e.T.Fatalf("decode session: %v", err)
	}
	return session.ID
}

// WritePDF writes a generated PDF with one entry of pages per page.
func (e *E2ETestEnv) WritePDF(name string, pages []string) string {
	path := filepath.Join(e.T.TempDir(), name)
	if err := os.WriteFile(path, testutil.BuildPDF(pages), 0o600); err != nil {
		e.T.Fatalf("write pdf: %v", err)
	}
	return path
}
