package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/bhm-spectra/specviewer/internal/config"
)

// ErrInvalidRateLimit is returned when a configured rate is not positive.
var ErrInvalidRateLimit = errors.New("rate limit must be positive")

// Config holds rate limiter configuration.
//
// Limits are requests per second for three tiers: global, per authenticated
// client and unauthenticated. A zero burst is computed as 2 × rate.
type Config struct {
	GlobalRPS int // SPECVIEWER_GLOBAL_RPS, default 100
	ClientRPS int // SPECVIEWER_CLIENT_RPS, default 50
	UnAuthRPS int // SPECVIEWER_UNAUTH_RPS, default 20

	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 100
}

// LoadConfig loads rate limiter settings from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("SPECVIEWER_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("SPECVIEWER_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("SPECVIEWER_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("SPECVIEWER_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("SPECVIEWER_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("SPECVIEWER_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"SPECVIEWER_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("SPECVIEWER_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("SPECVIEWER_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	for name, rps := range map[string]int{
		"global":          c.GlobalRPS,
		"client":          c.ClientRPS,
		"unauthenticated": c.UnAuthRPS,
	} {
		if rps <= 0 {
			return fmt.Errorf("%w: %s rate %d", ErrInvalidRateLimit, name, rps)
		}
	}

	return nil
}
