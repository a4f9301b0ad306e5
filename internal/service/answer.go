package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// TokenFunc receives fragments of an answer as the provider streams them.
type TokenFunc func(ctx context.Context, token string) error

// GenerateRequest is one call to a generation provider.
type GenerateRequest struct {
	Prompt      string
	Model       domain.ModelVariant
	Temperature float32
	OnToken     TokenFunc
}

// Generator defines the interface for text generation providers
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// AnswerConfig controls the answering step.
type AnswerConfig struct {
	HistoryWindow    int
	CondenseQuestion bool
	Temperature      float32
	GenerateTimeout  time.Duration
}

// DefaultAnswerConfig provides sane defaults for answering.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		HistoryWindow:    0,
		CondenseQuestion: true,
		Temperature:      0.1,
		GenerateTimeout:  2 * time.Minute,
	}
}

// AskInput is one question to answer. TopK <= 0 uses the retriever's default.
type AskInput struct {
	Question string
	Model    domain.ModelVariant
	TopK     int
	OnToken  TokenFunc
}

// Answer is the result of a successful question.
type Answer struct {
	Question           string
	StandaloneQuestion string
	Text               string
	Model              domain.ModelVariant
	Sources            []domain.ScoredChunk
	Prompt             string
}

// AnswerService retrieves context, asks the generator and records the turn.
type AnswerService struct {
	retriever *Retriever
	generator Generator
	cfg       AnswerConfig
	now       func() time.Time
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(retriever *Retriever, generator Generator, cfg AnswerConfig) *AnswerService {
	return &AnswerService{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Answer runs one question against index. The turn is appended to conv only
// when every step succeeded.
func (s *AnswerService) Answer(ctx context.Context, input AskInput, conv *Conversation, index *Index) (*Answer, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	model := input.Model
	if model == "" {
		model = domain.DefaultModelName
	}
	if !model.IsValid() {
		return nil, domain.ErrInvalidModel
	}
	ctx, span := telemetry.StartSpan(ctx, "answer", telemetry.SpanAttributes{Model: string(model)})
	defer span.End()

	history := conv.Window(s.cfg.HistoryWindow)

	retrievalQuery := question
	if s.cfg.CondenseQuestion && len(history) > 0 {
		standalone, err := s.condense(ctx, history, question, model)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		retrievalQuery = standalone
	}

	// TopK <= 0 leaves the count to the retriever's default
	sources, err := s.retriever.Retrieve(ctx, retrievalQuery, index, input.TopK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetData("sources", len(sources))

	prompt, err := BuildAnswerPrompt(history, sources, question)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to build prompt", err)
	}

	text, err := s.generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Model:       model,
		Temperature: s.cfg.Temperature,
		OnToken:     input.OnToken,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	conv.Append(domain.NewTurn(question, text, model, s.now()))

	log.Debug().
		Str("model", string(model)).
		Int("sources", len(sources)).
		Int("turns", conv.Len()).
		Msg("question answered")

	return &Answer{
		Question:           question,
		StandaloneQuestion: retrievalQuery,
		Text:               text,
		Model:              model,
		Sources:            sources,
		Prompt:             prompt,
	}, nil
}

func (s *AnswerService) condense(ctx context.Context, history []domain.Turn, question string, model domain.ModelVariant) (string, error) {
	prompt, err := BuildCondensePrompt(history, question)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to build prompt", err)
	}
	standalone, err := s.generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Model:       model,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	return standalone, nil
}

func (s *AnswerService) generate(ctx context.Context, req GenerateRequest) (string, error) {
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}

	text, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "failed to generate answer", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewDomainError(domain.ErrCodeGeneration, "provider returned an empty response")
	}
	return text, nil
}
