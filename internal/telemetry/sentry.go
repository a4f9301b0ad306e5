// Package telemetry reports traces and errors to Sentry. Every helper is a
// no-op until Init has been called with a DSN.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

const serverName = "pdfqa"

// Transactions that are never sampled.
var unsampled = map[string]bool{
	"GET /health": true,
	"GET /models": true,
}

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

// Init installs the global Sentry client and returns a function that
// flushes pending events. An empty DSN disables reporting.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	rate := cfg.TracesSampleRate
	if rate <= 0 {
		rate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		Release:          cfg.Release,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: rate,
		TracesSampler:    sampler(rate),
		BeforeSend:       scrub,
	})
	if err != nil {
		return func() {}, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	log.Info().
		Str("environment", env).
		Float64("sample_rate", rate).
		Msg("sentry tracing initialized")

	return func() { sentry.Flush(5 * time.Second) }, nil
}

func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if unsampled[ctx.Span.Name] {
			return 0
		}
		// children follow their transaction
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// scrub keeps uploaded documents and questions out of reported events.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event != nil && event.Request != nil {
		event.Request.Data = ""
		event.Request.Cookies = ""
	}
	return event
}

// SpanAttributes are tagged onto pipeline spans.
type SpanAttributes struct {
	SessionID string
	IndexID   string
	Model     string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.SessionID != "" {
		span.SetTag("session_id", a.SessionID)
	}
	if a.IndexID != "" {
		span.SetTag("index_id", a.IndexID)
	}
	if a.Model != "" {
		span.SetTag("model", a.Model)
	}
}

// Span is a pipeline step being traced.
type Span struct {
	inner *sentry.Span
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// there is none.
func StartSpan(ctx context.Context, op string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(op)
	} else {
		span = sentry.StartSpan(ctx, op, sentry.WithTransactionName(op))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// SetData attaches a measurement such as a chunk count.
func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError marks the span failed, tags the error code and reports err.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if code := domain.CodeOf(err); code != "" {
		s.inner.SetTag("error_code", code)
	}
	CaptureError(s.inner.Context(), err)
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// CaptureError reports err with its domain error code as a tag.
func CaptureError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if code := domain.CodeOf(err); code != "" {
			scope.SetTag("error_code", code)
		}
		hub.CaptureException(err)
	})
}

// AddBreadcrumb records a pipeline step on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
