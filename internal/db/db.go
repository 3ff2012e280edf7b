// Package db provides database persistence for scopesync.
//
// A single database holds the linked Teamwork connections. SQLite is the
// default; PostgreSQL is selected with the postgres dialect.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/scopesync/internal/db/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB wraps a database connection with driver abstraction.
type DB struct {
	driver driver.Driver
	dsn    string
}

// Open opens the database for dialect, creating the parent directory of a
// SQLite file when needed, and applies pending migrations.
func Open(ctx context.Context, dialect driver.Dialect, dsn string) (*DB, error) {
	if dialect == driver.DialectSQLite && !isMemory(dsn) {
		if err := os.MkdirAll(filepath.Dir(sqlitePath(dsn)), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(ctx, dsn); err != nil {
		return nil, err
	}

	d := &DB{driver: drv, dsn: dsn}
	if err := d.Migrate(ctx); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return d, nil
}

// OpenInMemory opens a migrated in-memory SQLite database.
// Each call creates a new isolated database.
func OpenInMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, driver.DialectSQLite, ":memory:")
}

// Migrate applies pending schema migrations for the database dialect.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.driver.Migrate(ctx, schemaFS, "schema"); err != nil {
		return fmt.Errorf("migrate %s: %w", d.driver.Dialect(), err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// DSN returns the data source the database was opened with.
func (d *DB) DSN() string {
	return d.dsn
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// ExecContext executes a query without returning rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, query, args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return d.driver.BeginTx(ctx, opts)
}

// FileDir returns the directory of a file-backed SQLite database. It
// reports false for PostgreSQL and in-memory databases.
func FileDir(dialect driver.Dialect, dsn string) (string, bool) {
	if dialect != driver.DialectSQLite || isMemory(dsn) {
		return "", false
	}
	return filepath.Dir(sqlitePath(dsn)), true
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// sqlitePath strips the file: scheme and query string from a SQLite DSN.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}
