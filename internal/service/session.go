package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/pagination"
	"github.com/cloo-solutions/pdfqa/internal/storage"
	"github.com/cloo-solutions/pdfqa/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TextExtractor turns an uploaded file into page text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]domain.Page, error)
}

// DocumentStorage stages PDF uploads outside the API server.
type DocumentStorage interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	Download(ctx context.Context, key string, maxBytes int64) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// UUIDGenerator generates unique identifiers
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

const pdfContentType = "application/pdf"

// Session owns one document, its index and its conversation.
// opMu serializes uploads and questions so they never interleave.
type Session struct {
	ID        string
	CreatedAt time.Time

	opMu sync.Mutex

	stateMu  sync.RWMutex
	model    domain.ModelVariant
	document *domain.Document
	index    *Index
	chunks   int
	conv     *Conversation

	lastActive atomic.Int64
}

func newSession(id string, model domain.ModelVariant, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		model:     model,
		conv:      NewConversation(),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// LastActive returns when the session last started or finished an operation.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load()).UTC()
}

func (s *Session) currentIndex() *Index {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.index
}

func (s *Session) currentModel() domain.ModelVariant {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.model
}

func (s *Session) conversation() *Conversation {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.conv
}

// reset discards the document, the index and the history.
func (s *Session) reset(ctx context.Context) {
	s.stateMu.Lock()
	old := s.index
	s.document = nil
	s.index = nil
	s.chunks = 0
	s.conv = NewConversation()
	s.stateMu.Unlock()

	if err := old.Drop(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to drop previous index")
	}
}

func (s *Session) install(doc *domain.Document, index *Index, chunks int) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.document = doc
	s.index = index
	s.chunks = chunks
}

// Info returns a snapshot of the session.
func (s *Session) Info() *SessionInfo {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	info := &SessionInfo{
		ID:           s.ID,
		Model:        s.model,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActive(),
		Turns:        s.conv.Len(),
	}
	if s.document != nil {
		doc := &DocumentInfo{
			ID:         s.document.ID,
			Filename:   s.document.Filename,
			Pages:      s.document.PageCount(),
			Characters: s.document.CharCount(),
			Chunks:     s.chunks,
			UploadedAt: s.document.UploadedAt,
		}
		if s.index != nil {
			doc.IndexedAt = s.index.BuiltAt()
		}
		info.Document = doc
	}
	return info
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID           string
	Model        domain.ModelVariant
	CreatedAt    time.Time
	LastActiveAt time.Time
	Document     *DocumentInfo
	Turns        int
}

// DocumentInfo summarizes the indexed document of a session.
type DocumentInfo struct {
	ID         string
	Filename   string
	Pages      int
	Characters int
	Chunks     int
	UploadedAt time.Time
	IndexedAt  time.Time
}

// UploadInput is a PDF sent directly to the service.
type UploadInput struct {
	SessionID string
	Filename  string
	Data      []byte
}

// UploadURLResult is a presigned location for staging a PDF.
type UploadURLResult struct {
	URL string
	Key string
}

// HistoryQuery selects a page of conversation turns.
type HistoryQuery struct {
	Limit       int
	Cursor      string
	NewestFirst bool
}

// HistoryEntry is a turn with its 1-based position in the conversation.
type HistoryEntry struct {
	Position int
	Turn     domain.Turn
}

// HistoryPage is one page of conversation turns.
type HistoryPage = pagination.PageResult[HistoryEntry]

// SessionServiceConfig wires the session service.
type SessionServiceConfig struct {
	Extractor        TextExtractor
	Chunker          *Chunker
	Builder          *IndexBuilder
	Answers          *AnswerService
	Storage          DocumentStorage
	UUIDGen          UUIDGenerator
	DefaultModel     domain.ModelVariant
	MaxDocumentBytes int64
}

// SessionService manages independent question-answering sessions.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	extractor    TextExtractor
	chunker      *Chunker
	builder      *IndexBuilder
	answers      *AnswerService
	storage      DocumentStorage
	uuidGen      UUIDGenerator
	defaultModel domain.ModelVariant
	maxBytes     int64
	now          func() time.Time
}

// NewSessionService creates a new SessionService instance
func NewSessionService(cfg SessionServiceConfig) *SessionService {
	uuidGen := cfg.UUIDGen
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	chunker := cfg.Chunker
	if chunker == nil {
		chunker = NewChunker(DefaultChunkConfig())
	}
	model := cfg.DefaultModel
	if !model.IsValid() {
		model = domain.DefaultModelName
	}
	return &SessionService{
		sessions:     make(map[string]*Session),
		extractor:    cfg.Extractor,
		chunker:      chunker,
		builder:      cfg.Builder,
		answers:      cfg.Answers,
		storage:      cfg.Storage,
		uuidGen:      uuidGen,
		defaultModel: model,
		maxBytes:     cfg.MaxDocumentBytes,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HasStorage reports whether staged uploads are available.
func (s *SessionService) HasStorage() bool {
	return s.storage != nil
}

// Create starts an empty session. An empty model selects the default.
func (s *SessionService) Create(ctx context.Context, model domain.ModelVariant) (*SessionInfo, error) {
	if model == "" {
		model = s.defaultModel
	}
	if !model.IsValid() {
		return nil, domain.ErrInvalidModel
	}

	sess := newSession(s.uuidGen.NewString(), model, s.now())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Info().Str("session_id", sess.ID).Str("model", string(model)).Msg("session created")
	return sess.Info(), nil
}

// Get returns a snapshot of a session.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Info(), nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionService) lookup(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// registered reports whether sess is still the live session under its ID.
func (s *SessionService) registered(sess *Session) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sess.ID] == sess
}

// Delete removes a session and releases its index.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.release(ctx, sess)
	log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// release waits for any in-flight operation and drops the session's index.
func (s *SessionService) release(ctx context.Context, sess *Session) {
	sess.opMu.Lock()
	defer sess.opMu.Unlock()
	sess.reset(ctx)
}

// SetModel changes the model variant used by later questions.
func (s *SessionService) SetModel(ctx context.Context, sessionID string, model domain.ModelVariant) (*SessionInfo, error) {
	if !model.IsValid() {
		return nil, domain.ErrInvalidModel
	}
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.stateMu.Lock()
	sess.model = model
	sess.stateMu.Unlock()
	sess.touch(s.now())

	return sess.Info(), nil
}

// Upload extracts, chunks and indexes a PDF, replacing the session's
// document. A failed extraction leaves the session untouched. Any later
// failure leaves the session without an index and with an empty history.
func (s *SessionService) Upload(ctx context.Context, input UploadInput) (*SessionInfo, error) {
	sess, err := s.lookup(input.SessionID)
	if err != nil {
		return nil, err
	}
	if len(input.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if s.maxBytes > 0 && int64(len(input.Data)) > s.maxBytes {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("document exceeds the %d byte limit", s.maxBytes))
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()
	// Delete or the reaper may have released the session while we waited
	if !s.registered(sess) {
		return nil, domain.ErrSessionNotFound
	}
	sess.touch(s.now())
	defer func() { sess.touch(s.now()) }()

	filename := input.Filename
	if filename == "" {
		filename = "document.pdf"
	}

	pages, err := s.extractor.Extract(ctx, filename, input.Data)
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "failed to extract text", err)
		}
		log.Warn().Err(err).Str("session_id", sess.ID).Str("filename", filename).Msg("extraction failed")
		return nil, err
	}

	// the previous document and everything said about it are gone from here on
	sess.reset(ctx)

	doc := domain.NewDocument(s.uuidGen.NewString(), filename, pages, s.now())
	chunks := s.chunker.Split(pages)

	index, err := s.builder.Build(ctx, doc.ID, chunks)
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Str("filename", filename).Msg("index build failed")
		return nil, err
	}

	sess.install(doc, index, len(chunks))
	telemetry.AddBreadcrumb(ctx, "document", fmt.Sprintf("indexed %s: %d pages, %d chunks", filename, doc.PageCount(), len(chunks)))

	log.Info().
		Str("session_id", sess.ID).
		Str("filename", filename).
		Int("pages", doc.PageCount()).
		Int("chunks", len(chunks)).
		Msg("document indexed")

	return sess.Info(), nil
}

// UploadURL returns a presigned URL the client can PUT a PDF to, and the key
// to pass to UploadFromStorage afterwards.
func (s *SessionService) UploadURL(ctx context.Context, sessionID string) (*UploadURLResult, error) {
	if s.storage == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	if _, err := s.lookup(sessionID); err != nil {
		return nil, err
	}

	key := stagingKey(sessionID, s.uuidGen.NewString())
	url, err := s.storage.GenerateUploadURL(ctx, key, pdfContentType)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrStorageOperationFail.Code, domain.ErrStorageOperationFail.Message, err)
	}
	return &UploadURLResult{URL: url, Key: key}, nil
}

// UploadFromStorage ingests a PDF previously staged under the session's
// prefix and deletes the staged object afterwards.
func (s *SessionService) UploadFromStorage(ctx context.Context, sessionID, key string) (*SessionInfo, error) {
	if s.storage == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	if _, err := s.lookup(sessionID); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(key, stagingPrefix(sessionID)) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "storage key does not belong to this session")
	}

	data, err := s.storage.Download(ctx, key, s.maxBytes)
	if errors.Is(err, storage.ErrObjectTooLarge) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
			fmt.Sprintf("document exceeds the %d byte limit", s.maxBytes), err)
	}
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrStorageOperationFail.Code, domain.ErrStorageOperationFail.Message, err)
	}
	defer func() {
		if err := s.storage.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to delete staged document")
		}
	}()

	return s.Upload(ctx, UploadInput{
		SessionID: sessionID,
		Filename:  path.Base(key),
		Data:      data,
	})
}

func stagingPrefix(sessionID string) string {
	return fmt.Sprintf("uploads/%s/", sessionID)
}

func stagingKey(sessionID, id string) string {
	return stagingPrefix(sessionID) + id + ".pdf"
}

// Ask answers a question against the session's current document. An empty
// model in the input uses the session's model.
func (s *SessionService) Ask(ctx context.Context, sessionID string, input AskInput) (*Answer, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()
	sess.touch(s.now())
	defer func() { sess.touch(s.now()) }()

	if input.Model == "" {
		input.Model = sess.currentModel()
	}

	answer, err := s.answers.Answer(ctx, input, sess.conversation(), sess.currentIndex())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("question failed")
		return nil, err
	}
	return answer, nil
}

// History returns one page of the session's turns.
func (s *SessionService) History(ctx context.Context, sessionID string, q HistoryQuery) (*HistoryPage, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return pageHistory(sess.conversation().History(), q)
}

// ReapIdle deletes sessions that have been idle for longer than ttl.
func (s *SessionService) ReapIdle(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)

	var idle []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.release(ctx, sess)
		log.Info().Str("session_id", sess.ID).Time("last_active", sess.LastActive()).Msg("idle session reaped")
	}
	return len(idle), nil
}
