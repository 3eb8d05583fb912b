package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database is a connection to a catalog SQLite file.
type Database struct {
	db   *sql.DB
	path string
}

// Options configures database creation and connection behavior
type Options struct {
	// Path to the SQLite database file
	Path string

	// WALMode enables Write-Ahead Logging
	WALMode bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration
}

// DefaultOptions returns the options the CLI uses.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 30 * time.Second,
	}
}

// Open creates or opens the database described by options.
func Open(options *Options) (*Database, error) {
	if options == nil {
		return nil, fmt.Errorf("database options cannot be nil")
	}

	if options.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", options.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing database connection: %w", err)
	}

	return &Database{db: db, path: options.Path}, nil
}

// Path is the file the database lives in.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil

	if err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}

	return nil
}

var errClosed = errors.New("database connection is closed")

func (d *Database) conn() (*sql.DB, error) {
	if d.db == nil {
		return nil, errClosed
	}
	return d.db, nil
}

// BeginTx starts a new transaction with the given options
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// Exec executes a SQL statement that doesn't return rows
func (d *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// Query executes a SQL query that returns rows
func (d *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow executes a SQL query that is expected to return at most one row.
// The database must be open.
func (d *Database) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Tables lists the user tables in the database.
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.Query(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableSchema returns the CREATE statement of a table.
func (d *Database) TableSchema(ctx context.Context, table string) (string, error) {
	var ddl string
	err := d.QueryRow(ctx, `SELECT sql FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("reading schema of %s: %w", table, err)
	}
	return ddl, nil
}

// buildConnectionString constructs the SQLite connection string with pragmas
func buildConnectionString(options *Options) string {
	var pragmas []string

	if options.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}

	if options.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", int(options.BusyTimeout.Milliseconds())))
	}

	pragmas = append(pragmas, "_synchronous=NORMAL")

	return "file:" + options.Path + "?" + strings.Join(pragmas, "&")
}

// ensureDirectory creates the directory for the database file if it doesn't exist
func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}

	return os.MkdirAll(dir, 0755)
}
