package server

import (
	"net/http"

	"github.com/cloo-solutions/pdfqa/internal/api"
	"github.com/cloo-solutions/pdfqa/internal/api/handlers"
	"github.com/cloo-solutions/pdfqa/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

// defaultMaxBodyBytes leaves room for multipart framing around the largest accepted PDF.
const defaultMaxBodyBytes int64 = 26 << 20

type RouterConfig struct {
	SessionHandler *handlers.SessionHandler
	ModelHandler   *handlers.ModelHandler
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/models", cfg.ModelHandler.List)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", cfg.SessionHandler.Create)
		r.Get("/{id}", cfg.SessionHandler.Get)
		r.Delete("/{id}", cfg.SessionHandler.Delete)
		r.Put("/{id}/model", cfg.SessionHandler.SetModel)
		r.Post("/{id}/document", cfg.SessionHandler.Upload)
		r.Post("/{id}/document/upload-url", cfg.SessionHandler.UploadURL)
		r.Post("/{id}/ask", cfg.SessionHandler.Ask)
		r.Get("/{id}/history", cfg.SessionHandler.History)
	})

	return r
}
