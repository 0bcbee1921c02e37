// Package server exposes the turn engine over HTTP: JSON chat, SSE
// streaming, document ingestion and health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/support-agent/server/internal/agent/model"
	logx "github.com/support-agent/server/pkg/logger"
)

// TurnProcessor is the single entry point the transport drives per inbound
// message.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sessionID, message string) (*model.TurnResult, error)
	ProcessTurnStream(ctx context.Context, sessionID, message string, onChunk func(string) error) (*model.TurnResult, error)
}

// KnowledgeIngester accepts documents into the knowledge collection.
type KnowledgeIngester interface {
	Ingest(ctx context.Context, collection, source, content string) (int, error)
}

// HealthCheck probes one dependency; nil error means reachable.
type HealthCheck func(ctx context.Context) error

// Server hosts the HTTP API.
type Server struct {
	cfg        model.ServerConfig
	engine     TurnProcessor
	ingester   KnowledgeIngester
	collection string
	checks     map[string]HealthCheck
	router     chi.Router
	httpServer *http.Server
}

// New builds the server and its router.
func New(cfg model.ServerConfig, engine TurnProcessor, ingester KnowledgeIngester, collection string, checks map[string]HealthCheck) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     engine,
		ingester:   ingester,
		collection: collection,
		checks:     checks,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	limiter := newRateLimiter(s.cfg.RequestsPerMinute, s.cfg.Burst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.middleware)
			r.Post("/chat", s.handleChat)
			r.Post("/chat/stream", s.handleChatStream)
			r.Post("/documents/upload", s.handleUpload)
		})
		r.Get("/health", s.handleHealth)
	})

	return r
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port and blocks until the
// listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logx.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger emits one structured line per request, with the request id
// bound to every field of the line.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		reqLog := logx.With("request_id", middleware.GetReqID(r.Context()))
		reqLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
