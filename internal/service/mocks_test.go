package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient mocks the embedding provider
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockGenerator mocks the generation provider
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockTextExtractor mocks PDF text extraction
type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) Extract(ctx context.Context, filename string, data []byte) ([]domain.Page, error) {
	args := m.Called(ctx, filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Page), args.Error(1)
}

// MockDocumentStorage mocks staged upload storage
type MockDocumentStorage struct {
	mock.Mock
}

func (m *MockDocumentStorage) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentStorage) Download(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	args := m.Called(ctx, key, maxBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDocumentStorage) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// recordingGenerator answers every prompt with a numbered reply and keeps the prompts.
type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	failAt  map[int]error
}

func (g *recordingGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	n := len(g.prompts)
	if err, ok := g.failAt[n]; ok {
		return "", err
	}
	if req.OnToken != nil {
		if err := req.OnToken(ctx, "answer "); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("answer %d", n), nil
}

func (g *recordingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// memStoreProvider hands out brute-force cosine stores.
type memStoreProvider struct {
	mu        sync.Mutex
	stores    map[string]*memStore
	failNew   error
	failWrite error
}

func newMemStoreProvider() *memStoreProvider {
	return &memStoreProvider{stores: make(map[string]*memStore)}
}

func (p *memStoreProvider) NewStore(ctx context.Context, indexID string) (ChunkStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNew != nil {
		return nil, p.failNew
	}
	s := &memStore{failWrite: p.failWrite}
	p.stores[indexID] = s
	return s, nil
}

func (p *memStoreProvider) store(indexID string) *memStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stores[indexID]
}

type memStore struct {
	chunks    []domain.Chunk
	vectors   [][]float32
	dropped   bool
	searches  int
	failWrite error
}

func (s *memStore) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if s.failWrite != nil {
		return s.failWrite
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors differ in length")
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns ties in reverse document order so callers must not rely on it.
func (s *memStore) Search(ctx context.Context, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	s.searches++
	out := make([]domain.ScoredChunk, 0, len(s.chunks))
	for i := len(s.chunks) - 1; i >= 0; i-- {
		out = append(out, domain.ScoredChunk{Chunk: s.chunks[i], Score: cosine(vector, s.vectors[i])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Drop(ctx context.Context) error {
	s.dropped = true
	return nil
}

func cosine(a, b []float32) float32 {
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
