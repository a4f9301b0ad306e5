// Package openai adapts go-openai to the embedding and generation ports of
// the answer pipeline.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel      = openai.SmallEmbedding3
	DefaultEmbeddingDimensions = 1536
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// Config points the adapters at OpenAI or any compatible endpoint.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewAPIClient builds the go-openai client shared by the embedder and the
// generator.
func NewAPIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// EmbeddingsAPI is the part of *openai.Client the embedder needs.
type EmbeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns chunk and query text into vectors. Every vector must have
// the configured width, since the index rejects mixed dimensions.
type Embedder struct {
	api        EmbeddingsAPI
	model      openai.EmbeddingModel
	dimensions int
}

func NewEmbedder(api EmbeddingsAPI, model openai.EmbeddingModel, dimensions int) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Embedder{api: api, model: model, dimensions: dimensions}
}

func NewEmbedderWithConfig(cfg Config) *Embedder {
	return NewEmbedder(NewAPIClient(cfg), cfg.EmbeddingModel, cfg.EmbeddingDimensions)
}

// GenerateEmbedding implements service.EmbeddingClient.
func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	req := openai.EmbeddingRequest{Input: []string{text}, Model: e.model}
	// only the v3 models can be shortened
	if strings.HasPrefix(string(e.model), "text-embedding-3") && e.dimensions != DefaultEmbeddingDimensions {
		req.Dimensions = e.dimensions
	}

	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("failed to create embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(vec), e.dimensions)
	}
	return vec, nil
}
