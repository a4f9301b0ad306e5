package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func buildTestIndex(t *testing.T, embedder EmbeddingClient, texts ...string) *Index {
	t.Helper()
	builder, _ := newTestBuilder(embedder)
	ix, err := builder.Build(context.Background(), "doc", makeChunks(texts...))
	require.NoError(t, err)
	return ix
}

func noCondenseConfig() AnswerConfig {
	cfg := DefaultAnswerConfig()
	cfg.CondenseQuestion = false
	return cfg
}

func TestAnswerService_Answer_Success(t *testing.T) {
	embedder := testutil.NewHashEmbedder(128)
	ix := buildTestIndex(t, embedder, "the sky is blue", "grass is green")
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return req.Model == domain.ModelGPT35Turbo && req.Temperature == float32(0.1)
	})).Return("  Blue.  ", nil)

	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())
	conv := NewConversation()

	answer, err := svc.Answer(context.Background(), AskInput{
		Question: "what colour is the sky",
		Model:    domain.ModelGPT35Turbo,
	}, conv, ix)

	require.NoError(t, err)
	assert.Equal(t, "Blue.", answer.Text)
	assert.Equal(t, domain.ModelGPT35Turbo, answer.Model)
	assert.Len(t, answer.Sources, 2)
	assert.Equal(t, 0, answer.Sources[0].Chunk.Index)
	assert.Contains(t, answer.Prompt, "Question: what colour is the sky")

	history := conv.History()
	require.Len(t, history, 1)
	assert.Equal(t, "what colour is the sky", history[0].Question)
	assert.Equal(t, "Blue.", history[0].Answer)
	assert.Equal(t, domain.ModelGPT35Turbo, history[0].Model)
	generator.AssertExpectations(t)
}

func TestAnswerService_Answer_DefaultModel(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return req.Model == domain.DefaultModelName
	})).Return("ok", nil)

	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())
	answer, err := svc.Answer(context.Background(), AskInput{Question: "q"}, NewConversation(), ix)

	require.NoError(t, err)
	assert.Equal(t, domain.ModelGPT4, answer.Model)
}

func TestAnswerService_Answer_Validation(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")
	generator := new(MockGenerator)
	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())

	tests := []struct {
		name    string
		input   AskInput
		wantErr error
	}{
		{name: "empty question", input: AskInput{Question: ""}, wantErr: domain.ErrEmptyQuestion},
		{name: "blank question", input: AskInput{Question: " \n\t"}, wantErr: domain.ErrEmptyQuestion},
		{name: "unknown model", input: AskInput{Question: "q", Model: "gpt-5000"}, wantErr: domain.ErrInvalidModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConversation()
			_, err := svc.Answer(context.Background(), tt.input, conv, ix)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, conv.Len())
		})
	}
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnswerService_Answer_GenerationFailureLeavesHistory(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")

	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "provider error", err: errors.New("rate limited")},
		{name: "empty reply", reply: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := new(MockGenerator)
			generator.On("Generate", mock.Anything, mock.Anything).Return(tt.reply, tt.err)
			svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())
			conv := NewConversation()
			conv.Append(domain.NewTurn("earlier", "reply", domain.ModelGPT4, time.Now()))

			_, err := svc.Answer(context.Background(), AskInput{Question: "q"}, conv, ix)

			assert.Equal(t, domain.ErrCodeGeneration, domain.CodeOf(err))
			assert.Equal(t, 1, conv.Len())
		})
	}
}

func TestAnswerService_Answer_RetrievalFailure(t *testing.T) {
	generator := new(MockGenerator)
	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())
	conv := NewConversation()

	_, err := svc.Answer(context.Background(), AskInput{Question: "q"}, conv, nil)

	assert.ErrorIs(t, err, domain.ErrNoIndex)
	assert.Equal(t, 0, conv.Len())
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnswerService_Answer_Timeout(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	cfg := noCondenseConfig()
	cfg.GenerateTimeout = 20 * time.Millisecond
	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, cfg)
	conv := NewConversation()

	_, err := svc.Answer(context.Background(), AskInput{Question: "q"}, conv, ix)

	assert.Equal(t, domain.ErrCodeGeneration, domain.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, conv.Len())
}

func TestAnswerService_Answer_FollowUpPromptOrder(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(64), "chapter one text", "chapter two text")
	generator := &recordingGenerator{}
	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, noCondenseConfig())
	conv := NewConversation()

	_, err := svc.Answer(context.Background(), AskInput{Question: "What is in chapter one?"}, conv, ix)
	require.NoError(t, err)
	_, err = svc.Answer(context.Background(), AskInput{Question: "And chapter two?"}, conv, ix)
	require.NoError(t, err)

	prompt := generator.lastPrompt()
	prior := strings.Index(prompt, "Human: What is in chapter one?")
	priorAnswer := strings.Index(prompt, "Assistant: answer 1")
	current := strings.Index(prompt, "Question: And chapter two?")
	require.NotEqual(t, -1, prior)
	require.NotEqual(t, -1, priorAnswer)
	require.NotEqual(t, -1, current)
	assert.Less(t, prior, current)
	assert.Less(t, priorAnswer, current)
	assert.Equal(t, 2, conv.Len())
}

func TestAnswerService_Answer_CondensesFollowUps(t *testing.T) {
	embedder := testutil.NewHashEmbedder(128)
	ix := buildTestIndex(t, embedder, "warranty lasts two years", "shipping takes a week")
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return strings.Contains(req.Prompt, "Standalone question:")
	})).Return("how long does shipping take", nil).Once()
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return strings.Contains(req.Prompt, "Question: and the other one?")
	})).Return("A week.", nil).Once()

	svc := NewAnswerService(NewRetriever(1), generator, DefaultAnswerConfig())
	conv := NewConversation()
	conv.Append(domain.NewTurn("how long is the warranty", "Two years.", domain.ModelGPT4, time.Now()))

	answer, err := svc.Answer(context.Background(), AskInput{Question: "and the other one?"}, conv, ix)

	require.NoError(t, err)
	assert.Equal(t, "how long does shipping take", answer.StandaloneQuestion)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 1, answer.Sources[0].Chunk.Index)
	assert.Equal(t, "A week.", answer.Text)
	generator.AssertExpectations(t)
}

func TestAnswerService_Answer_TopK(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(64), "one", "two", "three", "four")

	tests := []struct {
		name     string
		defaultK int
		topK     int
		want     int
	}{
		{"retriever default", 2, 0, 2},
		{"request wins", 2, 3, 3},
		{"capped by index size", 1, 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAnswerService(NewRetriever(tt.defaultK), &recordingGenerator{}, noCondenseConfig())

			answer, err := svc.Answer(context.Background(), AskInput{Question: "q", TopK: tt.topK}, NewConversation(), ix)

			require.NoError(t, err)
			assert.Len(t, answer.Sources, tt.want)
		})
	}
}

func TestAnswerService_Answer_HistoryWindow(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")
	generator := &recordingGenerator{}
	cfg := noCondenseConfig()
	cfg.HistoryWindow = 1
	svc := NewAnswerService(NewRetriever(DefaultTopK), generator, cfg)
	conv := NewConversation()
	conv.Append(domain.NewTurn("oldest question", "a", domain.ModelGPT4, time.Now()))
	conv.Append(domain.NewTurn("newest question", "b", domain.ModelGPT4, time.Now()))

	_, err := svc.Answer(context.Background(), AskInput{Question: "q"}, conv, ix)

	require.NoError(t, err)
	assert.NotContains(t, generator.lastPrompt(), "oldest question")
	assert.Contains(t, generator.lastPrompt(), "newest question")
	assert.Equal(t, 3, conv.Len())
}

func TestAnswerService_Answer_StreamsTokens(t *testing.T) {
	ix := buildTestIndex(t, testutil.NewHashEmbedder(32), "text")
	svc := NewAnswerService(NewRetriever(DefaultTopK), &recordingGenerator{}, noCondenseConfig())

	var tokens []string
	_, err := svc.Answer(context.Background(), AskInput{
		Question: "q",
		OnToken: func(ctx context.Context, token string) error {
			tokens = append(tokens, token)
			return nil
		},
	}, NewConversation(), ix)

	require.NoError(t, err)
	assert.Equal(t, []string{"answer "}, tokens)
}
