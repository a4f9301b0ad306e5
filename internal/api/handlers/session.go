package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/api"
	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxMultipartMemory = 8 << 20

type SessionService interface {
	Create(ctx context.Context, model domain.ModelVariant) (*service.SessionInfo, error)
	Get(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	Delete(ctx context.Context, sessionID string) error
	SetModel(ctx context.Context, sessionID string, model domain.ModelVariant) (*service.SessionInfo, error)
	Upload(ctx context.Context, input service.UploadInput) (*service.SessionInfo, error)
	UploadURL(ctx context.Context, sessionID string) (*service.UploadURLResult, error)
	UploadFromStorage(ctx context.Context, sessionID, key string) (*service.SessionInfo, error)
	Ask(ctx context.Context, sessionID string, input service.AskInput) (*service.Answer, error)
	History(ctx context.Context, sessionID string, q service.HistoryQuery) (*service.HistoryPage, error)
	HasStorage() bool
}

type SessionHandler struct {
	svc SessionService
}

func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type CreateSessionRequest struct {
	Model string `json:"model"`
}

type SetModelRequest struct {
	Model string `json:"model"`
}

type StagedUploadRequest struct {
	S3Key string `json:"s3_key"`
}

type AskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
	TopK     int    `json:"top_k"`
	Stream   bool   `json:"stream"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Pages      int    `json:"pages"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
	UploadedAt string `json:"uploaded_at"`
	IndexedAt  string `json:"indexed_at"`
}

type SessionResponse struct {
	ID           string            `json:"id"`
	Model        string            `json:"model"`
	ModelLabel   string            `json:"model_label"`
	Turns        int               `json:"turns"`
	CreatedAt    string            `json:"created_at"`
	LastActiveAt string            `json:"last_active_at"`
	Document     *DocumentResponse `json:"document,omitempty"`
}

type UploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	S3Key     string `json:"s3_key"`
}

type SourceResponse struct {
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

type AnswerResponse struct {
	Question           string           `json:"question"`
	StandaloneQuestion string           `json:"standalone_question,omitempty"`
	Answer             string           `json:"answer"`
	Model              string           `json:"model"`
	Sources            []SourceResponse `json:"sources"`
}

type TurnResponse struct {
	Position  int    `json:"position"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
}

type HistoryResponse struct {
	Turns   []TurnResponse `json:"turns"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sessionToResponse(info *service.SessionInfo) *SessionResponse {
	resp := &SessionResponse{
		ID:           info.ID,
		Model:        info.Model.String(),
		ModelLabel:   info.Model.Label(),
		Turns:        info.Turns,
		CreatedAt:    formatTime(info.CreatedAt),
		LastActiveAt: formatTime(info.LastActiveAt),
	}
	if doc := info.Document; doc != nil {
		resp.Document = &DocumentResponse{
			ID:         doc.ID,
			Filename:   doc.Filename,
			Pages:      doc.Pages,
			Characters: doc.Characters,
			Chunks:     doc.Chunks,
			UploadedAt: formatTime(doc.UploadedAt),
			IndexedAt:  formatTime(doc.IndexedAt),
		}
	}
	return resp
}

func answerToResponse(a *service.Answer) *AnswerResponse {
	sources := make([]SourceResponse, 0, len(a.Sources))
	for _, s := range a.Sources {
		sources = append(sources, SourceResponse{
			ChunkIndex: s.Chunk.Index,
			Page:       s.Chunk.Page,
			Start:      s.Chunk.Start,
			End:        s.Chunk.End,
			Score:      s.Score,
			Content:    s.Chunk.Content,
		})
	}
	resp := &AnswerResponse{
		Question: a.Question,
		Answer:   a.Text,
		Model:    a.Model.String(),
		Sources:  sources,
	}
	if a.StandaloneQuestion != a.Question {
		resp.StandaloneQuestion = a.StandaloneQuestion
	}
	return resp
}

func parseModel(raw string) (domain.ModelVariant, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return domain.ParseModelVariant(raw)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	model, err := parseModel(req.Model)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	info, err := h.svc.Create(r.Context(), model)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, sessionToResponse(info))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(info))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) SetModel(w http.ResponseWriter, r *http.Request) {
	var req SetModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		api.Error(w, http.StatusBadRequest, "model is required")
		return
	}

	model, err := domain.ParseModelVariant(req.Model)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	info, err := h.svc.SetModel(r.Context(), chi.URLParam(r, "id"), model)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(info))
}

// Upload accepts either a multipart form with a "file" part or a JSON body
// naming a previously staged object.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		h.uploadFromStorage(w, r, sessionID)
	case "multipart/form-data":
		h.uploadMultipart(w, r, sessionID)
	default:
		api.Error(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
	}
}

func (h *SessionHandler) uploadMultipart(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		if isTooLarge(err) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	info, err := h.svc.Upload(r.Context(), service.UploadInput{
		SessionID: sessionID,
		Filename:  path.Base(header.Filename),
		Data:      data,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(info))
}

func (h *SessionHandler) uploadFromStorage(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req StagedUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.S3Key == "" {
		api.Error(w, http.StatusBadRequest, "s3_key is required")
		return
	}

	info, err := h.svc.UploadFromStorage(r.Context(), sessionID, req.S3Key)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(info))
}

func (h *SessionHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	if !h.svc.HasStorage() {
		api.Error(w, http.StatusNotImplemented, "document storage is not configured")
		return
	}

	result, err := h.svc.UploadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, &UploadURLResponse{UploadURL: result.URL, S3Key: result.Key})
}

func (h *SessionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	model, err := parseModel(req.Model)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	input := service.AskInput{
		Question: req.Question,
		Model:    model,
		TopK:     req.TopK,
	}
	sessionID := chi.URLParam(r, "id")

	if req.Stream {
		h.askStream(w, r, sessionID, input)
		return
	}

	answer, err := h.svc.Ask(r.Context(), sessionID, input)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, answerToResponse(answer))
}

func (h *SessionHandler) askStream(w http.ResponseWriter, r *http.Request, sessionID string, input service.AskInput) {
	events := newEventStream(w)
	input.OnToken = func(ctx context.Context, token string) error {
		return events.Send("token", map[string]string{"text": token})
	}

	answer, err := h.svc.Ask(r.Context(), sessionID, input)
	if err != nil {
		if !events.Started() {
			api.HandleError(w, r, err)
			return
		}
		_ = events.Send("error", api.ErrorResponse{Error: err.Error(), Code: domain.CodeOf(err)})
		return
	}

	_ = events.Send("answer", answerToResponse(answer))
}

func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := service.HistoryQuery{Cursor: q.Get("cursor")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		query.Limit = limit
	}
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		query.NewestFirst = true
	default:
		api.Error(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	page, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), query)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	turns := make([]TurnResponse, 0, len(page.Items))
	for _, e := range page.Items {
		turns = append(turns, TurnResponse{
			Position:  e.Position,
			Question:  e.Turn.Question,
			Answer:    e.Turn.Answer,
			Model:     e.Turn.Model.String(),
			CreatedAt: formatTime(e.Turn.CreatedAt),
		})
	}

	api.Success(w, http.StatusOK, &HistoryResponse{
		Turns:   turns,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
