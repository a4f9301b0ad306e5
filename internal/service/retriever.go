package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/pdfqa/internal/domain"
)

// Retriever finds the chunks of an index most relevant to a question.
type Retriever struct {
	defaultK int
}

// NewRetriever creates a Retriever. defaultK applies when a call passes k <= 0.
func NewRetriever(defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	return &Retriever{defaultK: defaultK}
}

// Retrieve embeds question with the index's own embedder and returns the
// top k chunks. It never caches across calls.
func (r *Retriever) Retrieve(ctx context.Context, question string, index *Index, k int) ([]domain.ScoredChunk, error) {
	if index == nil {
		return nil, domain.ErrNoIndex
	}
	if index.Len() == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if k <= 0 {
		k = r.defaultK
	}

	vector, err := index.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	return index.Query(ctx, vector, k)
}
