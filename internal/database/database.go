// Package database owns the SQLite handle shared by every store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/watzon/clipcast/internal/config"
	"github.com/watzon/clipcast/internal/database/migrations"
)

// DB wraps *sql.DB with the pragmas and migrations clipcast expects.
type DB struct {
	*sql.DB
	wal    bool
	closed atomic.Bool
}

// Tx is the handle passed to Transaction callbacks.
type Tx struct {
	*sql.Tx
}

// Open creates the parent directory if needed, connects, and migrates.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer unless the pool is sized explicitly.
	sqlDB.SetMaxOpenConns(max(cfg.MaxOpenConns, 1))
	sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Path, err)
	}

	if err := migrations.Run(context.Background(), sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{DB: sqlDB, wal: cfg.WALMode}, nil
}

// dsn encodes the pragmas as _pragma parameters so the driver applies them
// to every pooled connection, not just the first.
func dsn(cfg *config.DatabaseConfig) string {
	q := url.Values{}
	add := func(name string, value any) {
		q.Add("_pragma", fmt.Sprintf("%s(%v)", name, value))
	}

	add("busy_timeout", cfg.BusyTimeout.Milliseconds())
	if cfg.WALMode {
		add("journal_mode", "WAL")
		add("synchronous", "NORMAL")
	}
	if cfg.ForeignKeys {
		add("foreign_keys", 1)
	}
	if cfg.CacheSize != 0 {
		add("cache_size", cfg.CacheSize)
	}
	add("temp_store", "MEMORY")

	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close checkpoints the WAL and closes the pool. Later calls are no-ops.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.wal {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	if db.closed.Load() {
		return sql.ErrConnDone
	}
	return db.PingContext(ctx)
}

// Transaction runs fn inside a transaction, committing when it returns nil.
// A panic in fn rolls back and is re-raised.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rbErr := sqlTx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err := fn(&Tx{Tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Now returns the current UTC time in the storage format.
func Now() string {
	return FormatTime(time.Now())
}

// storedLayout is fixed width so stored strings compare in time order.
const storedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t the way every table stores timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(storedLayout)
}

// ParseTime parses a stored timestamp. Values written by sqlite's datetime('now') are accepted too.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q", s)
}

// NullTime converts an optional time into a nullable column value.
func NullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseNullTime is the inverse of NullTime.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
