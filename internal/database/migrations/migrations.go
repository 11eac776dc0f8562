// Package migrations provides the embedded SQL schema for clipcast.
//
// Files under sql/ are applied in name order, each in its own transaction, and
// recorded in _clipcast_versions with a checksum of their contents.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// AppliedMigration represents a migration that has been applied to the database.
type AppliedMigration struct {
	ID        string
	Checksum  string
	AppliedAt time.Time
}

// Status describes one embedded migration relative to a database.
type Status struct {
	ID        string
	Applied   bool
	AppliedAt time.Time
	// Modified is set when the embedded file no longer matches what was applied.
	Modified bool
}

type migration struct {
	id       string
	content  string
	checksum string
}

// Run applies every embedded migration the database has not recorded yet.
func Run(ctx context.Context, db *sql.DB) error {
	statuses, all, err := status(ctx, db)
	if err != nil {
		return err
	}

	for i, st := range statuses {
		if st.Modified {
			log.Warn().Str("migration", st.ID).Msg("Applied migration differs from embedded file")
		}
		if st.Applied {
			continue
		}
		if err := apply(ctx, db, all[i]); err != nil {
			return fmt.Errorf("applying migration %s: %w", st.ID, err)
		}
		log.Info().Str("migration", st.ID).Msg("Applied migration")
	}
	return nil
}

// GetApplied returns the migrations recorded in the database, oldest first.
func GetApplied(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, fmt.Errorf("ensuring version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, checksum, applied_at FROM _clipcast_versions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var result []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		var appliedAt string
		if err := rows.Scan(&m.ID, &m.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		m.AppliedAt = parseAppliedAt(appliedAt)
		result = append(result, m)
	}
	return result, rows.Err()
}

// GetStatus reports every embedded migration and whether db has applied it.
func GetStatus(ctx context.Context, db *sql.DB) ([]Status, error) {
	statuses, _, err := status(ctx, db)
	return statuses, err
}

func status(ctx context.Context, db *sql.DB) ([]Status, []migration, error) {
	applied, err := GetApplied(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byID[a.ID] = a
	}

	all, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}

	statuses := make([]Status, len(all))
	for i, m := range all {
		st := Status{ID: m.id}
		if a, ok := byID[m.id]; ok {
			st.Applied = true
			st.AppliedAt = a.AppliedAt
			st.Modified = a.Checksum != "" && a.Checksum != m.checksum
		}
		statuses[i] = st
	}
	return statuses, all, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _clipcast_versions (
			id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		)
	`)
	return err
}

func load() ([]migration, error) {
	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("reading sql directory: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		content, err := fs.ReadFile(sqlFS, "sql/"+name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		sum := sha256.Sum256(content)
		out = append(out, migration{
			id:       strings.TrimSuffix(name, ".sql"),
			content:  string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(m.content) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _clipcast_versions (id, checksum) VALUES (?, ?)`, m.id, m.checksum,
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}

// splitStatements cuts a script on top-level semicolons. Quoted text and
// comments are skipped while scanning, and comments are dropped from the output.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		ch := script[i]
		switch {
		case ch == '-' && i+1 < len(script) && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
				continue
			}
			i += end
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
				continue
			}
			i += end + 3
			cur.WriteByte(' ')
		case ch == '\'' || ch == '"':
			// SQL escapes a quote by doubling it, which this loop handles as
			// two adjacent quoted runs.
			end := strings.IndexByte(script[i+1:], ch)
			if end < 0 {
				cur.WriteString(script[i:])
				i = len(script)
				continue
			}
			cur.WriteString(script[i : i+end+2])
			i += end + 1
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}

func parseAppliedAt(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
