package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder for tests. Texts that
// share words get similar vectors, and no vector is ever all zeros.
type HashEmbedder struct {
	Dims int
	// FailOn makes GenerateEmbedding fail for texts containing this substring.
	FailOn string

	mu    sync.Mutex
	calls int
}

// NewHashEmbedder returns a HashEmbedder with dims dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims < 2 {
		dims = 2
	}
	return &HashEmbedder{Dims: dims}
}

// GenerateEmbedding implements the embedding client port.
func (e *HashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, fmt.Errorf("embedding provider rejected input")
	}
	return e.Vector(text), nil
}

// Vector returns the embedding of text without counting a call.
func (e *HashEmbedder) Vector(text string) []float32 {
	vec := make([]float32, e.Dims)
	vec[e.Dims-1] = 0.1
	for _, word := range Words(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32()%uint32(e.Dims-1))]++
	}
	return vec
}

// Calls returns how many times GenerateEmbedding was called.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Words splits text into lowercase words of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
