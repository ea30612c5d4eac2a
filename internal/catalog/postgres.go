package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/bhm-spectra/specviewer/internal/storage"
)

// ErrIndexUnavailable is returned when the database cannot be reached.
var ErrIndexUnavailable = errors.New("catalog index unavailable")

// ErrNoDatabaseConnection is returned when a PostgresIndex is built without a connection.
var ErrNoDatabaseConnection = errors.New("no database connection")

// ImportStats counts rows written by Import.
type ImportStats struct {
	Programs int
	Fields   int
	Epochs   int
	Links    int
}

// PostgresIndex serves the catalog index from the tables created by the
// catalog migrations.
type PostgresIndex struct {
	conn   *storage.Connection
	logger *slog.Logger
}

// NewPostgresIndex serves the index from conn. The connection is owned by the caller.
func NewPostgresIndex(conn *storage.Connection, logger *slog.Logger) (*PostgresIndex, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PostgresIndex{conn: conn, logger: logger}, nil
}

// Epochs implements Index.
func (p *PostgresIndex) Epochs(ctx context.Context, catalogID string) ([]Epoch, error) {
	rows, err := p.conn.QueryContext(ctx, `
		SELECT field, mjd, spec1_g, mjd_final
		FROM catalog_epochs
		WHERE catalog_id = $1
		ORDER BY position
	`, catalogID)
	if err != nil {
		return nil, p.wrap("query epochs", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var epochs []Epoch

	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Field, &e.MJD, &e.Spec1G, &e.MJDFinal); err != nil {
			return nil, p.wrap("scan epoch", err)
		}

		epochs = append(epochs, e)
	}

	if err := rows.Err(); err != nil {
		return nil, p.wrap("iterate epochs", err)
	}

	if len(epochs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, catalogID)
	}

	return epochs, nil
}

// Linked implements Index.
func (p *PostgresIndex) Linked(ctx context.Context, catalogID string) ([]string, error) {
	return p.queryStrings(ctx, "query linked objects", `
		SELECT linked_id FROM catalog_links WHERE catalog_id = $1 ORDER BY position
	`, catalogID)
}

// Programs implements Index.
func (p *PostgresIndex) Programs(ctx context.Context) ([]string, error) {
	return p.queryStrings(ctx, "query programs", `
		SELECT DISTINCT program FROM catalog_programs ORDER BY program
	`)
}

// Fields implements Index.
func (p *PostgresIndex) Fields(ctx context.Context, program string) ([]string, error) {
	fields, err := p.queryStrings(ctx, "query fields", `
		SELECT field FROM catalog_programs WHERE program = $1 ORDER BY position
	`, program)
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, program)
	}

	return fields, nil
}

// Objects implements Index.
func (p *PostgresIndex) Objects(ctx context.Context, program, field string) ([]string, error) {
	if _, err := p.Fields(ctx, program); err != nil {
		return nil, err
	}

	objects, err := p.queryStrings(ctx, "query objects", `
		SELECT catalog_id FROM catalog_field_objects WHERE field_key = $1 ORDER BY position
	`, fieldKey(program, field))
	if err != nil {
		return nil, err
	}

	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownField, program, field)
	}

	return objects, nil
}

// HealthCheck implements Index.
func (p *PostgresIndex) HealthCheck(ctx context.Context) error {
	return p.conn.HealthCheck(ctx)
}

// Import replaces the index contents with d in a single transaction. Rows are
// streamed with COPY.
func (p *PostgresIndex) Import(ctx context.Context, d *Dictionaries) (ImportStats, error) {
	var stats ImportStats

	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, p.wrap("begin import", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	for _, table := range []string{"catalog_links", "catalog_epochs", "catalog_field_objects", "catalog_programs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return stats, p.wrap("clear "+table, err)
		}
	}

	err = copyRows(ctx, tx, "catalog_programs", []string{"program", "field", "position"}, func(emit emitFunc) error {
		for _, program := range d.ProgramNames() {
			for i, field := range d.Programs[program] {
				if err := emit(program, field, i); err != nil {
					return err
				}

				stats.Programs++
			}
		}

		return nil
	})
	if err != nil {
		return stats, p.wrap("copy programs", err)
	}

	err = copyRows(ctx, tx, "catalog_field_objects", []string{"field_key", "catalog_id", "position"}, func(emit emitFunc) error {
		for key, objects := range d.FieldIDs {
			for i, id := range objects {
				if err := emit(key, id, i); err != nil {
					return err
				}
			}

			stats.Fields++
		}

		return nil
	})
	if err != nil {
		return stats, p.wrap("copy field objects", err)
	}

	err = copyRows(ctx, tx, "catalog_epochs",
		[]string{"catalog_id", "field", "mjd", "spec1_g", "mjd_final", "position"},
		func(emit emitFunc) error {
			for id, epochs := range d.CatalogIDs {
				for i, e := range epochs {
					if err := emit(id, e.Field, e.MJD, e.Spec1G, e.MJDFinal, i); err != nil {
						return err
					}

					stats.Epochs++
				}
			}

			return nil
		})
	if err != nil {
		return stats, p.wrap("copy epochs", err)
	}

	err = copyRows(ctx, tx, "catalog_links", []string{"catalog_id", "linked_id", "position"}, func(emit emitFunc) error {
		for id, linked := range d.Linked {
			for i, other := range linked {
				if err := emit(id, other, i); err != nil {
					return err
				}

				stats.Links++
			}
		}

		return nil
	})
	if err != nil {
		return stats, p.wrap("copy links", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, p.wrap("commit import", err)
	}

	p.logger.Info("Catalog index imported",
		slog.Int("programs", stats.Programs),
		slog.Int("fields", stats.Fields),
		slog.Int("epochs", stats.Epochs),
		slog.Int("links", stats.Links),
	)

	return stats, nil
}

type emitFunc func(values ...interface{}) error

func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, fill func(emitFunc) error) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return err
	}

	emit := func(values ...interface{}) error {
		_, err := stmt.ExecContext(ctx, values...)

		return err
	}

	if err := fill(emit); err != nil {
		_ = stmt.Close()

		return err
	}

	// An Exec without arguments flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()

		return err
	}

	return stmt.Close()
}

func (p *PostgresIndex) queryStrings(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, p.wrap(op, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var values []string

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, p.wrap(op, err)
		}

		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, p.wrap(op, err)
	}

	return values, nil
}

func (p *PostgresIndex) wrap(op string, err error) error {
	if isConnectionError(err) {
		p.logger.Error("Catalog index unavailable", slog.String("op", op), slog.String("error", err.Error()))

		return fmt.Errorf("%w: %s: %w", ErrIndexUnavailable, op, err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// isConnectionError reports PostgreSQL class 08 errors and closed connections.
func isConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
