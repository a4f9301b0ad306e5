package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyPrompt is returned when a generation request has no prompt
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// chatModels maps model variants to OpenAI chat model names.
var chatModels = map[domain.ModelVariant]string{
	domain.ModelGPT4:       openai.GPT4,
	domain.ModelGPT35Turbo: openai.GPT3Dot5Turbo,
	domain.ModelGPT4Turbo:  openai.GPT4TurboPreview,
}

// ChatRequest is one prompt sent to the chat completions API.
type ChatRequest struct {
	Model       string
	Prompt      string
	Temperature float32
}

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// Stream calls onDelta for every content fragment and returns the full text.
	Stream(ctx context.Context, req ChatRequest, onDelta func(string) error) (string, error)
}

// ChatAdapter implements ChatAPI with go-openai.
type ChatAdapter struct {
	client *openai.Client
}

func NewChatAdapter(client *openai.Client) *ChatAdapter {
	return &ChatAdapter{client: client}
}

func (a *ChatAdapter) request(req ChatRequest, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Stream:      stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
}

// Complete sends a non-streaming chat completion request
func (a *ChatAdapter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.request(req, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends a streaming chat completion request
func (a *ChatAdapter) Stream(ctx context.Context, req ChatRequest, onDelta func(string) error) (string, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(req, true))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}
}

// Generator answers prompts with OpenAI chat models.
type Generator struct {
	api ChatAPI
}

// NewGenerator creates a generator over the given chat API.
func NewGenerator(api ChatAPI) *Generator {
	return &Generator{api: api}
}

// NewGeneratorWithConfig creates a generator talking to the OpenAI API.
func NewGeneratorWithConfig(cfg Config) *Generator {
	return NewGenerator(NewChatAdapter(NewAPIClient(cfg)))
}

// Generate implements service.Generator.
func (g *Generator) Generate(ctx context.Context, req service.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}
	model, ok := chatModels[req.Model]
	if !ok {
		return "", fmt.Errorf("no OpenAI model for variant %q", req.Model)
	}

	chatReq := ChatRequest{Model: model, Prompt: req.Prompt, Temperature: req.Temperature}
	if req.OnToken == nil {
		text, err := g.api.Complete(ctx, chatReq)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		return text, nil
	}

	text, err := g.api.Stream(ctx, chatReq, func(delta string) error {
		return req.OnToken(ctx, delta)
	})
	if err != nil {
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	return text, nil
}
