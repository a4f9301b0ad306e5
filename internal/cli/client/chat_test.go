package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	model     domain.ModelVariant
	uploaded  string
	questions []string
	turns     []domain.Turn
}

func (f *fakeChatService) Create(ctx context.Context, model domain.ModelVariant) (*service.SessionInfo, error) {
	if model == "" {
		model = domain.DefaultModelName
	}
	f.model = model
	return &service.SessionInfo{ID: "s1", Model: model}, nil
}

func (f *fakeChatService) Upload(ctx context.Context, input service.UploadInput) (*service.SessionInfo, error) {
	f.uploaded = input.Filename
	return &service.SessionInfo{
		ID:       input.SessionID,
		Model:    f.model,
		Document: &service.DocumentInfo{Filename: input.Filename, Pages: 4, Chunks: 9},
	}, nil
}

func (f *fakeChatService) SetModel(ctx context.Context, sessionID string, model domain.ModelVariant) (*service.SessionInfo, error) {
	f.model = model
	return &service.SessionInfo{ID: sessionID, Model: model}, nil
}

func (f *fakeChatService) Ask(ctx context.Context, sessionID string, input service.AskInput) (*service.Answer, error) {
	f.questions = append(f.questions, input.Question)
	if input.OnToken != nil {
		for _, tok := range []string{"Forty", "-two"} {
			if err := input.OnToken(ctx, tok); err != nil {
				return nil, err
			}
		}
	}
	f.turns = append(f.turns, domain.NewTurn(input.Question, "Forty-two", f.model, time.Now()))
	return &service.Answer{
		Question: input.Question,
		Text:     "Forty-two",
		Model:    f.model,
		Sources:  []domain.ScoredChunk{{Chunk: domain.Chunk{Page: 3}, Score: 0.9}},
	}, nil
}

func (f *fakeChatService) History(ctx context.Context, sessionID string, q service.HistoryQuery) (*service.HistoryPage, error) {
	page := &service.HistoryPage{}
	for i, turn := range f.turns {
		page.Items = append(page.Items, service.HistoryEntry{Position: i + 1, Turn: turn})
	}
	return page, nil
}

func TestRunChat(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(filePath, []byte("%PDF"), 0600))

	svc := &fakeChatService{}
	in := strings.NewReader("What is the answer?\n\n:model gpt-3.5-turbo\n:model nonsense\n:history\n:quit\nignored\n")
	var out strings.Builder

	err := runChat(context.Background(), svc, filePath, "", in, &out)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", svc.uploaded)
	assert.Equal(t, []string{"What is the answer?"}, svc.questions)
	assert.Equal(t, domain.ModelGPT35Turbo, svc.model)

	output := out.String()
	assert.Contains(t, output, "Ready: 4 pages, 9 chunks")
	assert.Contains(t, output, "Forty-two\n")
	assert.Contains(t, output, "page 3")
	assert.Contains(t, output, "Model set to")
	assert.Contains(t, output, "error:")
	assert.Contains(t, output, "#1 [")
}

func TestRunChat_EOFEnds(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(filePath, []byte("%PDF"), 0600))

	var out strings.Builder
	err := runChat(context.Background(), &fakeChatService{}, filePath, "", strings.NewReader(""), &out)
	require.NoError(t, err)
}

func TestRunChat_MissingFile(t *testing.T) {
	var out strings.Builder
	err := runChat(context.Background(), &fakeChatService{}, "/does/not/exist.pdf", "", strings.NewReader(""), &out)
	require.Error(t, err)
}
