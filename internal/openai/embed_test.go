package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmbeddingsAPI struct {
	mock.Mock
}

func (m *MockEmbeddingsAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func vectorResponse(dims int) openai.EmbeddingResponse {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}
	return openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: vec}}}
}

func TestEmbedder_GenerateEmbedding(t *testing.T) {
	apiErr := errors.New("API rate limit exceeded")

	tests := []struct {
		name    string
		text    string
		resp    openai.EmbeddingResponse
		apiErr  error
		wantLen int
		wantErr error
		errText string
	}{
		{name: "ok", text: "revenue grew", resp: vectorResponse(1536), wantLen: 1536},
		{name: "empty text", text: "", wantErr: ErrEmptyText},
		{name: "api error", text: "q", resp: openai.EmbeddingResponse{}, apiErr: apiErr, wantErr: apiErr, errText: "failed to create embedding"},
		{name: "no data", text: "q", resp: openai.EmbeddingResponse{}, errText: "empty response"},
		{name: "wrong width", text: "q", resp: vectorResponse(512), wantErr: ErrWrongDimensions, errText: "got 512, expected 1536"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockEmbeddingsAPI)
			if tt.text != "" {
				api.On("CreateEmbeddings", mock.Anything, openai.EmbeddingRequest{
					Input: []string{tt.text},
					Model: DefaultEmbeddingModel,
				}).Return(tt.resp, tt.apiErr)
			}

			vec, err := NewEmbedder(api, "", 0).GenerateEmbedding(context.Background(), tt.text)

			if tt.wantErr == nil && tt.errText == "" {
				require.NoError(t, err)
				assert.Len(t, vec, tt.wantLen)
			} else {
				assert.Nil(t, vec)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				if tt.errText != "" {
					assert.ErrorContains(t, err, tt.errText)
				}
			}
			api.AssertExpectations(t)
		})
	}
}

func TestEmbedder_Defaults(t *testing.T) {
	e := NewEmbedderWithConfig(Config{APIKey: "k"})
	assert.Equal(t, DefaultEmbeddingModel, e.model)
	assert.Equal(t, DefaultEmbeddingDimensions, e.dimensions)

	custom := NewEmbedderWithConfig(Config{APIKey: "k", EmbeddingModel: openai.LargeEmbedding3, EmbeddingDimensions: 256})
	assert.Equal(t, openai.LargeEmbedding3, custom.model)
	assert.Equal(t, 256, custom.dimensions)
}

func TestEmbedder_HTTP(t *testing.T) {
	var body struct {
		Model      string   `json:"model"`
		Input      []string `json:"input"`
		Dimensions int      `json:"dimensions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`)
	}))
	defer srv.Close()

	e := NewEmbedderWithConfig(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", EmbeddingDimensions: 3})

	vec, err := e.GenerateEmbedding(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-3-small", body.Model)
	assert.Equal(t, []string{"hello"}, body.Input)
	assert.Equal(t, 3, body.Dimensions)
}
