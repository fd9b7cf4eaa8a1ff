// Package api implements the REST surface of spec §6.3: component
// CRUD/lifecycle endpoints behind a uniform {success,data,error} JSON
// envelope, a Prometheus /metrics endpoint, and a /debug/ws live
// lifecycle-state feed, grounded on the teacher's chi-router wiring.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/registry"
)

// Server exposes the registry over HTTP.
type Server struct {
	reg *registry.Registry
	log *logging.Logger
	mux *chi.Mux
}

// NewServer builds the chi router and mounts every route.
func NewServer(reg *registry.Registry, log *logging.Logger) *Server {
	s := &Server{reg: reg, log: log, mux: chi.NewRouter()}

	s.mux.Use(middleware.Recoverer)
	s.mux.Use(middleware.RequestID)
	s.mux.Use(requestLogger(log))
	s.mux.Use(middleware.Timeout(30 * time.Second))

	s.mux.Get("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Get("/debug/ws", s.handleDebugWS)

	s.mux.Route("/sources", func(r chi.Router) {
		r.Get("/", s.handleListSources)
		r.Post("/", s.handleCreateSource)
		r.Get("/{id}", s.handleGetSource)
		r.Delete("/{id}", s.handleDeleteSource)
		r.Post("/{id}/start", s.handleStartSource)
		r.Post("/{id}/stop", s.handleStopSource)
	})

	s.mux.Route("/queries", func(r chi.Router) {
		r.Get("/", s.handleListQueries)
		r.Post("/", s.handleCreateQuery)
		r.Get("/{id}", s.handleGetQuery)
		r.Delete("/{id}", s.handleDeleteQuery)
		r.Post("/{id}/start", s.handleStartQuery)
		r.Post("/{id}/stop", s.handleStopQuery)
		r.Get("/{id}/results", s.handleQueryResults)
	})

	s.mux.Route("/reactions", func(r chi.Router) {
		r.Get("/", s.handleListReactions)
		r.Post("/", s.handleCreateReaction)
		r.Get("/{id}", s.handleGetReaction)
		r.Delete("/{id}", s.handleDeleteReaction)
		r.Post("/{id}/start", s.handleStartReaction)
		r.Post("/{id}/stop", s.handleStopReaction)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// requestLogger adapts the teacher's structured-logging middleware
// convention to chi's middleware signature.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Named("api").WithField("method", r.Method).WithField("path", r.URL.Path).
				WithField("duration_ms", time.Since(start).Milliseconds()).Debug("request handled")
		})
	}
}
