package fetch

import (
	"errors"
	"fmt"
	"time"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/config"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxAttempts      = 5
	defaultRetryBackoff     = 2 * time.Second
	defaultRequestsPerSec   = 8.0
	defaultBurst            = 4
	defaultMaxResponseBytes = 64 << 20
	defaultMemoSize         = 64
)

var (
	ErrInvalidTimeout      = errors.New("fetch timeout must be positive")
	ErrInvalidMaxAttempts  = errors.New("fetch max attempts must be at least 1")
	ErrInvalidRetryBackoff = errors.New("fetch retry backoff cannot be negative")
	ErrInvalidRateLimit    = errors.New("archive rate limit must be positive")
	ErrInvalidMaxBytes     = errors.New("max response bytes must be positive")
	ErrInvalidMemoSize     = errors.New("url memo size cannot be negative")
)

// Config holds archive transport settings.
type Config struct {
	// AuthBase is the URL prefix that requires basic auth. Requests elsewhere are anonymous.
	AuthBase string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// MaxAttempts bounds connection attempts per fetch.
	MaxAttempts int

	// RetryBackoff is the constant wait between attempts.
	RetryBackoff time.Duration

	// RequestsPerSecond and Burst pace outbound requests to the archive.
	RequestsPerSecond float64
	Burst             int

	MaxResponseBytes int64

	// MemoSize bounds the URL-keyed response memo. 0 means unbounded.
	MemoSize int
}

// LoadConfig loads transport settings from environment variables with fallback to defaults.
//
// Environment variables:
//   - SPECVIEWER_AUTH_BASE: access-controlled URL prefix
//   - SPECVIEWER_FETCH_TIMEOUT: per-attempt deadline (default: 30s)
//   - SPECVIEWER_FETCH_MAX_ATTEMPTS: attempts per fetch (default: 5)
//   - SPECVIEWER_FETCH_RETRY_BACKOFF: wait between attempts (default: 2s)
//   - SPECVIEWER_ARCHIVE_RPS / SPECVIEWER_ARCHIVE_BURST: outbound pacing (default: 8 / 4)
//   - SPECVIEWER_MAX_RESPONSE_BYTES: body size cap (default: 64MiB)
//   - SPECVIEWER_URL_MEMO_SIZE: memoized responses (default: 64)
func LoadConfig() *Config {
	return &Config{
		AuthBase:          config.GetEnvStr("SPECVIEWER_AUTH_BASE", archive.AccessControlledBase),
		Timeout:           config.GetEnvDuration("SPECVIEWER_FETCH_TIMEOUT", defaultTimeout),
		MaxAttempts:       config.GetEnvInt("SPECVIEWER_FETCH_MAX_ATTEMPTS", defaultMaxAttempts),
		RetryBackoff:      config.GetEnvDuration("SPECVIEWER_FETCH_RETRY_BACKOFF", defaultRetryBackoff),
		RequestsPerSecond: config.GetEnvFloat("SPECVIEWER_ARCHIVE_RPS", defaultRequestsPerSec),
		Burst:             config.GetEnvInt("SPECVIEWER_ARCHIVE_BURST", defaultBurst),
		MaxResponseBytes:  config.GetEnvInt64("SPECVIEWER_MAX_RESPONSE_BYTES", defaultMaxResponseBytes),
		MemoSize:          config.GetEnvInt("SPECVIEWER_URL_MEMO_SIZE", defaultMemoSize),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeout, c.Timeout)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, c.MaxAttempts)
	}

	if c.RetryBackoff < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRetryBackoff, c.RetryBackoff)
	}

	if c.RequestsPerSecond <= 0 || c.Burst < 1 {
		return fmt.Errorf("%w: got %v rps, burst %d", ErrInvalidRateLimit, c.RequestsPerSecond, c.Burst)
	}

	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxBytes, c.MaxResponseBytes)
	}

	if c.MemoSize < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMemoSize, c.MemoSize)
	}

	return nil
}
