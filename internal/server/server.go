package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/backyonatan-alt/conflictwatch/internal/cache"
	"github.com/backyonatan-alt/conflictwatch/internal/config"
	"github.com/backyonatan-alt/conflictwatch/internal/store"
)

// Server holds dependencies for HTTP handlers. store may be nil when no
// database is configured.
type Server struct {
	cfg      *config.Config
	cache    *cache.Cache
	store    store.Store
	paths    map[string]string
	gatherer prometheus.Gatherer
}

// New builds a Server. paths maps each source name to its output file.
func New(cfg *config.Config, cache *cache.Cache, store store.Store, paths map[string]string, gatherer prometheus.Gatherer) *Server {
	return &Server{cfg: cfg, cache: cache, store: store, paths: paths, gatherer: gatherer}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/{source}", s.handleData)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}
