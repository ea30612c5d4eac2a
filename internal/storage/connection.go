package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const pingTimeout = 5 * time.Second

// Connection wraps a pooled PostgreSQL handle.
type Connection struct {
	*sql.DB
}

// NewConnection opens a connection pool, applies the pool limits from cfg and
// verifies connectivity with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.MaskDatabaseURL(), err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.MaskDatabaseURL(), err)
	}

	return &Connection{DB: db}, nil
}

// HealthCheck pings the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	return c.PingContext(ctx)
}

// Close closes the pool. Safe to call on a nil Connection.
func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}

	return c.DB.Close()
}
