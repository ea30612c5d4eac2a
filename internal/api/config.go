// Package api serves the spectra relay: bundles, candidate URLs and catalog
// dropdown data over HTTP.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bhm-spectra/specviewer/internal/config"
)

const (
	defaultPort             int    = 8080
	maxPort                 int    = 65535
	defaultHost             string = "0.0.0.0"
	defaultCORSMaxAge       int    = 86400
	defaultReadTimeout             = 30 * time.Second
	defaultWriteTimeout            = 150 * time.Second
	defaultShutdownTimeout         = 30 * time.Second
	defaultAggregateTimeout        = 120 * time.Second
	defaultLogLevel                = slog.LevelInfo
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidAggregateTimeout indicates the per-request aggregation budget is zero or negative.
	ErrInvalidAggregateTimeout = errors.New("aggregate timeout must be positive")
)

type (
	// ServerConfig holds HTTP server configuration.
	ServerConfig struct {
		Port            int
		Host            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		// AggregateTimeout bounds one /api/v1/spectra request. Keep it below
		// WriteTimeout so that the error response can still be written.
		AggregateTimeout   time.Duration
		LogLevel           slog.Level
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
	}

	// CORSConfig holds CORS configuration options.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:             config.GetEnvInt("SPECVIEWER_SERVER_PORT", defaultPort),
		Host:             config.GetEnvStr("SPECVIEWER_SERVER_HOST", defaultHost),
		ReadTimeout:      config.GetEnvDuration("SPECVIEWER_SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:     config.GetEnvDuration("SPECVIEWER_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		ShutdownTimeout:  config.GetEnvDuration("SPECVIEWER_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		AggregateTimeout: config.GetEnvDuration("SPECVIEWER_AGGREGATE_TIMEOUT", defaultAggregateTimeout),
		LogLevel:         config.GetEnvLogLevel("SPECVIEWER_LOG_LEVEL", defaultLogLevel),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("SPECVIEWER_CORS_ALLOWED_ORIGINS", "*"),
		),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("SPECVIEWER_CORS_ALLOWED_METHODS", "GET,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"SPECVIEWER_CORS_ALLOWED_HEADERS",
				"Content-Type,Authorization,X-Correlation-ID,X-API-Key",
			),
		),
		CORSMaxAge: config.GetEnvInt("SPECVIEWER_CORS_MAX_AGE", defaultCORSMaxAge),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to a middleware.CORSConfigProvider.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c *CORSConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// GetAllowedMethods returns the allowed methods for CORS.
func (c *CORSConfig) GetAllowedMethods() []string {
	return c.AllowedMethods
}

// GetAllowedHeaders returns the allowed headers for CORS.
func (c *CORSConfig) GetAllowedHeaders() []string {
	return c.AllowedHeaders
}

// GetMaxAge returns the max age for CORS preflight cache.
func (c *CORSConfig) GetMaxAge() int {
	return c.MaxAge
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.AggregateTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidAggregateTimeout, c.AggregateTimeout)
	}

	return nil
}
