// Package handler provides the HTTP admin API for the Cascade store.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/service"
)

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Files          service.FileService
	Chunks         cas.Store
	MetricsEnabled bool
	MetricsPath    string
	Registry       *prometheus.Registry
	Logger         zerolog.Logger
}

// Router handles HTTP routing for the admin API.
type Router struct {
	files  *FileHandler
	chunks *ChunkHandler
	cfg    RouterConfig
	logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		files:  NewFileHandler(cfg.Files, cfg.Logger),
		chunks: NewChunkHandler(cfg.Chunks, cfg.Logger),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(rt.requestID)
	r.Use(rt.requestLogger)

	r.Get("/health", rt.handleHealth)

	if rt.cfg.MetricsEnabled {
		r.Method(http.MethodGet, rt.cfg.MetricsPath,
			promhttp.HandlerFor(rt.cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/objects", rt.chunks.List)
		r.Get("/objects/{digest}", rt.chunks.Info)

		r.Get("/files", rt.files.Names)
		r.Get("/files/{name}", rt.files.Read)
		r.Delete("/files/{name}", rt.files.RemoveAllVersions)
		r.Get("/files/{name}/versions", rt.files.Versions)
		r.Get("/files/{name}/versions/head", rt.files.HeadVersion)
		r.Delete("/files/{name}/versions/{version}", rt.files.RemoveVersion)
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// requestID tags each request with a unique ID for log correlation.
func (rt *Router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(
			rt.logger.With().Str("request_id", id).Logger().WithContext(r.Context()),
		))
	})
}

// requestLogger logs one line per request.
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zerolog.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}
