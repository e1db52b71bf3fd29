package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBOptions holds connection settings for the SQLite database.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout bounds the connectivity check on open.
	PingTimeout time.Duration
	// WALMode enables write-ahead logging. Not supported in-memory.
	WALMode     bool
	ForeignKeys bool
	// BusyTimeout is how long a connection waits on SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DefaultDBOptions returns settings tuned for embedded use.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
	}
}

// NewDB opens the SQLite database at dbPath with default options,
// creating the parent directory when missing.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewDBWithOptions opens the SQLite database with explicit options.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma settings: %w", err)
	}

	return db, nil
}

// NewInMemoryDB opens an in-memory database for tests. The pool is
// capped at one connection so every statement sees the same schema.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return NewDBWithOptions(ctx, ":memory:", opts)
}

func buildDSN(dbPath string, opts DBOptions) string {
	params := []string{}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout.Milliseconds()))
	}
	if len(params) > 0 {
		return dbPath + "?" + strings.Join(params, "&")
	}
	return dbPath
}

func applyPragmas(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := make([]string, 0, 4)
	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}
