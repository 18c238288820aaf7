package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultBusyTimeout is how long SQLite waits on a lock held by another connection.
const DefaultBusyTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	// Driver selects the database/sql driver. Empty means DriverMattn.
	Driver string

	// BusyTimeout is applied as PRAGMA busy_timeout. Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// Trace logs every statement at debug level on Logger.
	Trace bool

	// Logger receives trace and retry diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DB is an open SQLite database holding one or more record tables.
type DB struct {
	db     *sql.DB
	path   string
	driver string
	trace  bool
	logger *slog.Logger
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas; tables are created by DB.Table.
//
// This function is idempotent - safe to call on every startup.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open database: empty path")
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverMattn
	}
	if driver != DriverMattn && driver != DriverModernc {
		return nil, fmt.Errorf("open database: unknown driver %q", driver)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	memory := path == MemoryPath
	dsn := path
	if !memory {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = path + "?_txlock=immediate"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageFault{Op: "connect", Err: err}
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps an in-memory database alive for the lifetime of the DB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	if err := applyPragmas(db, memory, busy); err != nil {
		db.Close()
		return nil, &StorageFault{Op: "apply pragmas", Err: err}
	}

	return &DB{
		db:     db,
		path:   path,
		driver: driver,
		trace:  opts.Trace,
		logger: logger.With("db", path),
	}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Path returns the path the database was opened with.
func (d *DB) Path() string {
	return d.path
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

func applyPragmas(db *sql.DB, memory bool, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (d *DB) verifyPragma(name, expected string) error {
	var value string
	if err := d.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func (d *DB) traceStmt(query string, args ...any) {
	if d.trace {
		d.logger.Debug("sql", "query", query, "args", args)
	}
}

func (d *DB) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	d.traceStmt(query, args...)
	var res sql.Result
	err := retryOnBusy(ctx, d.logger, func() error {
		var execErr error
		res, execErr = d.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

// inTx runs fn inside a transaction, retrying the whole transaction on SQLITE_BUSY.
func (d *DB) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := retryOnBusy(ctx, d.logger, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	var abort *abortError
	if errors.As(err, &abort) {
		return abort.err
	}
	if err != nil {
		return translate(op, err)
	}
	return nil
}

// abortError carries a caller error out of a transaction without translation.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
