package catalog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/config"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

const defaultIndexPath = "dictionaries.txt"

// ErrIndexPathEmpty is returned when neither a database nor a file is configured.
var ErrIndexPathEmpty = errors.New("catalog index path cannot be empty")

// Config selects the catalog index backend.
type Config struct {
	// Path is the dictionaries file (SPECVIEWER_INDEX_PATH). Used when Database is not enabled.
	Path string

	Database *storage.Config
}

// LoadConfig loads catalog settings from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Path:     config.GetEnvStr("SPECVIEWER_INDEX_PATH", defaultIndexPath),
		Database: storage.LoadConfig(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database != nil && c.Database.Enabled() {
		return c.Database.Validate()
	}

	if strings.TrimSpace(c.Path) == "" {
		return ErrIndexPathEmpty
	}

	return nil
}

// Open returns the configured index and a closer for its resources.
func Open(cfg *Config, logger *slog.Logger) (Index, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.Database != nil && cfg.Database.Enabled() {
		conn, err := storage.NewConnection(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}

		idx, err := NewPostgresIndex(conn, logger)
		if err != nil {
			_ = conn.Close()

			return nil, nil, err
		}

		logger.Info("Using PostgreSQL catalog index", slog.String("database_url", cfg.Database.MaskDatabaseURL()))

		return idx, conn, nil
	}

	idx, err := LoadFile(cfg.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	return idx, nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
