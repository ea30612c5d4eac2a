package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// MigrationRunner is what the CLI commands need from a runner.
type MigrationRunner interface {
	Up() error
	Down() error
	Status() (Status, error)
	Drop() error
	Close() error
}

// Status describes the schema of the database against the migrations in the binary.
type Status struct {
	// Current is 0 when nothing has been applied.
	Current int
	Dirty   bool
	Latest  int
}

// Pending returns how many migrations Up would apply.
func (s Status) Pending() int {
	return max(s.Latest-s.Current, 0)
}

// Ahead reports a database migrated by a newer binary.
func (s Status) Ahead() bool {
	return s.Current > s.Latest
}

// Runner applies the catalog schema with golang-migrate.
type Runner struct {
	migrate *migrate.Migrate
	db      *sql.DB
	source  *Source
	logger  *slog.Logger
}

var _ MigrationRunner = (*Runner)(nil)

// NewRunner validates the source, connects to the database and prepares golang-migrate.
func NewRunner(ctx context.Context, cfg *Config, source *Source, logger *slog.Logger) (*Runner, error) {
	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	if _, err := source.Load(); err != nil {
		return nil, fmt.Errorf("migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(source.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Runner{migrate: m, db: db, source: source, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	err := r.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	r.logger.Info("All migrations applied")

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	err := r.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No migrations to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	r.logger.Info("Last migration rolled back")

	return nil
}

// Status reports the applied version.
func (r *Runner) Status() (Status, error) {
	latest, err := r.source.Latest()
	if err != nil {
		return Status{}, err
	}

	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}

	if err != nil {
		return Status{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	return Status{Current: int(version), Dirty: dirty, Latest: latest}, nil // #nosec G115 -- versions are three digits
}

// Drop removes every table, including the migration table.
func (r *Runner) Drop() error {
	if err := r.revalidate(); err != nil {
		return err
	}

	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	return nil
}

// Close releases the migrate instance and the database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) revalidate() error {
	if _, err := r.source.Load(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	return nil
}

// migrateLogger forwards golang-migrate output to slog.
type migrateLogger struct {
	logger *slog.Logger
}

var _ migrate.Logger = (*migrateLogger)(nil)

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug("migrate", slog.String("message", fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
