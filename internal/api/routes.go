package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhm-spectra/specviewer/internal/api/middleware"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

const (
	healthCheckTimeout     = 2 * time.Second
	expectedURLParts       = 2
	contentTypeProblemJSON = "application/problem+json"
	versionHeader          = "X-Specviewer-Version"
)

func (s *Server) setupRoutes(mux *http.ServeMux) {
	public := []Route{
		{"GET /ping", s.handlePing},     // liveness probe
		{"GET /ready", s.handleReady},   // readiness probe, checks the catalog index
		{"GET /health", s.handleHealth}, // status, uptime, version, cache counters
		{"/", s.handleNotFound},
	}

	if s.deps.Gatherer != nil {
		metrics := promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(
			s.logger.Handler(), slog.LevelError,
		)})
		public = append(public, Route{"GET /metrics", metrics.ServeHTTP})
	}

	s.registerPublicRoutes(mux, public...)

	mux.Handle("GET /api/v1/spectra", s.require(storage.PermissionSpectraRead, s.handleSpectra))
	mux.Handle("GET /api/v1/resolve", s.require(storage.PermissionSpectraRead, s.handleResolve))
	mux.Handle("GET /api/v1/programs", s.require(storage.PermissionCatalogRead, s.handlePrograms))
	mux.Handle("GET /api/v1/programs/{program}/fields",
		s.require(storage.PermissionCatalogRead, s.handleFields))
	mux.Handle("GET /api/v1/programs/{program}/fields/{field}/objects",
		s.require(storage.PermissionCatalogRead, s.handleObjects))
}

func (s *Server) require(permission string, handler http.HandlerFunc) http.Handler {
	return middleware.RequirePermission(permission, s.logger)(handler)
}

// registerPublicRoutes registers routes that bypass authentication.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := route.Path
		if parts := strings.Fields(path); len(parts) == expectedURLParts {
			path = parts[1] // "GET /ping" -> "/ping"
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(versionHeader, s.deps.Version)
	s.writeText(w, r, http.StatusOK, "pong")
}

// handleReady reports 503 when the catalog index cannot serve requests.
// Without an index only pinned identifiers work, which needs nothing but the archive.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		s.writeText(w, r, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.deps.Index.HealthCheck(ctx); err != nil {
		s.logger.Error("Catalog index health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		s.writeText(w, r, http.StatusServiceUnavailable, "catalog index unavailable")

		return
	}

	s.writeText(w, r, http.StatusOK, "ready")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Engine.CacheStats()

	index := "none"
	if s.deps.Index != nil {
		index = "configured"
	}

	w.Header().Set(versionHeader, s.deps.Version)
	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     s.deps.Version,
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		Index:       index,
		ResultCache: CacheStatus{
			Entries:   stats.Entries,
			Hits:      stats.Hits,
			Misses:    stats.Misses,
			Shared:    stats.Shared,
			Evictions: stats.Evictions,
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals before writing so that encoding failures still produce a problem response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// writeError logs err and answers with the problem it maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	problem := problemFor(err)

	level := slog.LevelInfo
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	s.logger.Log(r.Context(), level, "Request failed",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", problem.Status),
		slog.String("error", err.Error()),
	)

	WriteErrorResponse(w, r, s.logger, problem)
}
