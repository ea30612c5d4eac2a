package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bhm-spectra/specviewer/internal/api/middleware"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

const serviceName = "specviewer"

// Dependencies are the collaborators of the server. Only Engine is required.
type Dependencies struct {
	Engine *retrieval.Engine

	// Index serves the program, field and object listings and /ready.
	Index catalog.Index

	// APIKeyStore enables authentication when set.
	APIKeyStore storage.APIKeyStore

	// RateLimiter enables rate limiting when set.
	RateLimiter middleware.RateLimiter

	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the HTTP relay in front of the aggregation engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time
	deps       Dependencies
}

// NewServer wires routes and middleware. It does not listen until Start.
func NewServer(cfg *ServerConfig, deps Dependencies, logger *slog.Logger) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}

	server := &Server{
		logger:    logger,
		config:    cfg,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if deps.APIKeyStore != nil { // pragma: allowlist secret
		logger.Info("API key authentication enabled")
	} else {
		logger.Warn("APIKeyStore not configured - authentication disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	server.handler = middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(deps.APIKeyStore, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           server.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return server
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting specviewer API server",
			slog.String("address", s.config.Address()),
			slog.String("version", s.deps.Version),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("aggregate_timeout", s.config.AggregateTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")

		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if limiter, ok := s.deps.RateLimiter.(interface{ Close() }); ok {
		limiter.Close()
		s.logger.Info("Rate limiter closed")
	}

	if store, ok := s.deps.APIKeyStore.(io.Closer); ok {
		if err := store.Close(); err != nil {
			s.logger.Error("Failed to close API key store", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
