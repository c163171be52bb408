package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/paramem/internal/engine"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/logger"
)

// Server is the paramem HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time

	// background checkpoints outlive their request
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// New creates a new Server over eng.
func New(eng *engine.Engine, version string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:  eng,
		version: version,
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close cancels background checkpoints and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.bg.Wait()
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/context", s.handleGetContext)

		r.Get("/entities", s.handleListEntities)
		r.Post("/entities", s.handleCreateEntity)
		r.Route("/entities/{type}/{slug}", func(r chi.Router) {
			r.Get("/", s.handleGetEntity)
			r.Get("/summary", s.handleGetSummary)
			r.Post("/facts", s.handleAddFact)
			r.Post("/access", s.handleAccess)
		})

		r.Post("/decay", s.handleDecay)
		r.Post("/checkpoint", s.handleCheckpoint)
	})

	s.router = r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugw("http: request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "elapsed", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	refs, err := s.engine.Entities(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"uptime":      time.Since(s.started).Seconds(),
		"store":       err == nil,
		"entities":    len(refs),
		"checkpoints": s.engine.CheckpointsEnabled(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain errors onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, facts.ErrInvalidEntity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, facts.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, facts.ErrMalformedDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Errorw("http: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
