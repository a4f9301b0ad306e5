// Package ollama runs embeddings and generation against a local Ollama server
// through langchaingo.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultChatModel serves model variants without an explicit mapping.
const DefaultChatModel = "llama3"

// Embedder implements the embedding client port with an Ollama model.
type Embedder struct {
	embedder embeddings.Embedder
}

// NewEmbedder connects to serverURL and embeds with model.
func NewEmbedder(serverURL, model string) (*Embedder, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &Embedder{embedder: e}, nil
}

// GenerateEmbedding generates an embedding for the given text
func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return vec, nil
}

// Generator answers prompts with Ollama chat models. Each model variant maps
// to an Ollama model name.
type Generator struct {
	llm    llms.Model
	models map[domain.ModelVariant]string
}

// NewGenerator creates a generator over llm.
func NewGenerator(llm llms.Model, models map[string]string) *Generator {
	mapped := make(map[domain.ModelVariant]string, len(models))
	for variant, name := range models {
		mapped[domain.ModelVariant(variant)] = name
	}
	return &Generator{llm: llm, models: mapped}
}

// NewGeneratorWithServer connects to serverURL.
func NewGeneratorWithServer(serverURL string, models map[string]string) (*Generator, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(DefaultChatModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewGenerator(llm, models), nil
}

// ModelFor returns the Ollama model serving variant.
func (g *Generator) ModelFor(variant domain.ModelVariant) string {
	if name, ok := g.models[variant]; ok && name != "" {
		return name
	}
	return DefaultChatModel
}

// Generate implements service.Generator.
func (g *Generator) Generate(ctx context.Context, req service.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("prompt cannot be empty")
	}

	opts := []llms.CallOption{
		llms.WithModel(g.ModelFor(req.Model)),
		llms.WithTemperature(float64(req.Temperature)),
	}
	if req.OnToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return req.OnToken(ctx, string(chunk))
		}))
	}

	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Content, nil
}
