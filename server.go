package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/ai"
	"github.com/backtrue/fbaudai/cost"
	"github.com/backtrue/fbaudai/meta"
	"github.com/backtrue/fbaudai/storage"
)

// analyzer is the pipeline surface the handlers depend on.
type analyzer interface {
	AnalyzeCreativeDiversity(ctx context.Context, images [][]byte, opts ai.Options) (*ai.CreativeDiversityResult, error)
}

// audienceSearcher is the Marketing API surface the handlers depend on.
type audienceSearcher interface {
	VerifyAndGenerateAudiences(ctx context.Context, keywords []string, metrics *cost.Metrics) ([]meta.AudienceRecommendation, error)
}

// Server wires the HTTP surface to the pipeline and its collaborators.
type Server struct {
	pipeline  analyzer
	store     storage.Store
	audiences audienceSearcher
	tokens    *meta.TokenManager
	verifier  TokenVerifier
}

// NewServer assembles the service's HTTP layer.
func NewServer(pipeline analyzer, store storage.Store, audiences audienceSearcher, tokens *meta.TokenManager, verifier TokenVerifier) *Server {
	return &Server{
		pipeline:  pipeline,
		store:     store,
		audiences: audiences,
		tokens:    tokens,
		verifier:  verifier,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/api/analyze", s.handleAnalyze)
		r.Post("/api/generate-audiences", s.handleGenerateAudiences)
		r.Get("/api/analyses", s.handleListAnalyses)
		r.Get("/api/analyses/{id}", s.handleGetAnalysis)
		r.Get("/api/dashboard/stats", s.handleDashboardStats)
		r.Get("/api/meta-status", s.handleMetaStatus)
	})

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// newID returns a random 16-byte hex identifier.
func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tokens.Status())
}
