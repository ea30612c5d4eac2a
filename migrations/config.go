package main

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/config"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

const defaultMigrationTable = "schema_migrations"

var (
	// ErrMigrationTableEmpty is returned when SPECVIEWER_MIGRATION_TABLE is set to blanks.
	ErrMigrationTableEmpty = errors.New("migration table cannot be empty")

	// ErrInvalidMigrationTable is returned for table names that are not plain SQL identifiers.
	ErrInvalidMigrationTable = errors.New("migration table must be a lowercase SQL identifier")

	tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// Config holds the migrator settings.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig reads DATABASE_URL and SPECVIEWER_MIGRATION_TABLE and validates them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("SPECVIEWER_MIGRATION_TABLE", defaultMigrationTable),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return storage.ErrDatabaseURLEmpty
	}

	if strings.TrimSpace(c.MigrationTable) == "" {
		return ErrMigrationTableEmpty
	}

	if !tableNamePattern.MatchString(c.MigrationTable) {
		return fmt.Errorf("%w: %q", ErrInvalidMigrationTable, c.MigrationTable)
	}

	return nil
}

// String is safe for logging: the password in DatabaseURL is masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		storage.NewConfig(c.DatabaseURL).MaskDatabaseURL(), c.MigrationTable)
}
