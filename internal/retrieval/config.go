package retrieval

import (
	"errors"

	"github.com/bhm-spectra/specviewer/internal/config"
)

const defaultResultCacheSize = 512

// ErrInvalidCacheSize is returned when the result cache size is negative.
var ErrInvalidCacheSize = errors.New("result cache size cannot be negative")

// Config holds aggregation engine settings.
type Config struct {
	// ResultCacheSize bounds cached bundles (SPECVIEWER_RESULT_CACHE_SIZE). 0 means unbounded.
	ResultCacheSize int
}

// LoadConfig loads engine settings from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		ResultCacheSize: config.GetEnvInt("SPECVIEWER_RESULT_CACHE_SIZE", defaultResultCacheSize),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ResultCacheSize < 0 {
		return ErrInvalidCacheSize
	}

	return nil
}
