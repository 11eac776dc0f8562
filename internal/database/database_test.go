package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/watzon/clipcast/internal/config"
)

func openTestDB(t *testing.T, conns int) *DB {
	t.Helper()

	db, err := Open(&config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "nested", "test.db"),
		WALMode:      true,
		ForeignKeys:  true,
		CacheSize:    -2000,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: conns,
		MaxIdleConns: conns,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestOpenMigratesAndPings(t *testing.T) {
	db := openTestDB(t, 1)
	ctx := context.Background()

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	for _, table := range []string{"schedules", "accounts", "media", "posts", "scheduler_state"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	db := openTestDB(t, 2)
	ctx := context.Background()

	// Hold two connections at once so the pool cannot hand back the same one.
	c1, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []interface {
		QueryRowContext(context.Context, string, ...any) *sql.Row
	}{c1, c2} {
		var fk, busy int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
			t.Fatal(err)
		}
		if fk != 1 || busy != 5000 {
			t.Errorf("conn %d: foreign_keys=%d busy_timeout=%d", i, fk, busy)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db := openTestDB(t, 1)

	if err := db.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := db.Ping(context.Background()); err == nil {
		t.Error("Ping after Close should fail")
	}
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		fn       func(tx *Tx) error
		wantErr  bool
		wantRows int
	}{
		{
			name: "commit",
			fn: func(tx *Tx) error {
				if _, err := tx.Exec("INSERT INTO kv (k) VALUES ('a')"); err != nil {
					return err
				}
				_, err := tx.Exec("INSERT INTO kv (k) VALUES ('b')")
				return err
			},
			wantRows: 2,
		},
		{
			name: "constraint rolls back",
			fn: func(tx *Tx) error {
				if _, err := tx.Exec("INSERT INTO kv (k) VALUES ('a')"); err != nil {
					return err
				}
				_, err := tx.Exec("INSERT INTO kv (k) VALUES ('a')")
				return err
			},
			wantErr: true,
		},
		{
			name: "callback error rolls back",
			fn: func(tx *Tx) error {
				if _, err := tx.Exec("INSERT INTO kv (k) VALUES ('a')"); err != nil {
					return err
				}
				return errors.New("changed my mind")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t, 1)
			if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT UNIQUE)"); err != nil {
				t.Fatal(err)
			}

			err := db.Transaction(ctx, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transaction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := countRows(t, db, "kv"); got != tt.wantRows {
				t.Errorf("rows = %d, want %d", got, tt.wantRows)
			}
		})
	}
}

func TestTransactionUniqueViolationClassifies(t *testing.T) {
	db := openTestDB(t, 1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT UNIQUE)"); err != nil {
		t.Fatal(err)
	}

	err := db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec("INSERT INTO kv (k) VALUES ('x'), ('x')")
		return err
	})
	if !IsUniqueError(ClassifyError(err)) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

func TestTransactionPanicRollsBack(t *testing.T) {
	db := openTestDB(t, 1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT)"); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = db.Transaction(ctx, func(tx *Tx) error {
			if _, err := tx.Exec("INSERT INTO kv (k) VALUES ('a')"); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if got := countRows(t, db, "kv"); got != 0 {
		t.Errorf("rows after panic = %d, want 0", got)
	}
}

func TestClassifyError(t *testing.T) {
	err := ClassifyError(errors.New("constraint failed: UNIQUE constraint failed: accounts.id (2067)"))
	ce := AsConstraintError(err)
	if ce == nil {
		t.Fatalf("expected ConstraintError, got %T", err)
	}
	if ce.Table != "accounts" || ce.Column != "id" {
		t.Errorf("expected accounts.id, got %s.%s", ce.Table, ce.Column)
	}
	if !errors.Is(err, ErrUniqueViolation) {
		t.Error("expected errors.Is to match ErrUniqueViolation")
	}

	plain := errors.New("disk I/O error")
	if ClassifyError(plain) != plain {
		t.Error("expected unrelated errors to pass through")
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}

func TestQueryBuilder(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *QueryBuilder
		expected string
		args     int
	}{
		{
			name: "simple select",
			build: func() *QueryBuilder {
				return NewQuery("posts")
			},
			expected: "SELECT * FROM posts",
		},
		{
			name: "select with columns",
			build: func() *QueryBuilder {
				return NewQuery("posts").Select("id", "status")
			},
			expected: "SELECT id, status FROM posts",
		},
		{
			name: "with filter",
			build: func() *QueryBuilder {
				return NewQuery("posts").Where("status", "failed")
			},
			expected: "SELECT * FROM posts WHERE status = ?",
			args:     1,
		},
		{
			name: "in filter",
			build: func() *QueryBuilder {
				return NewQuery("accounts").Filter("id", OpIn, []any{"a", "b", "c"})
			},
			expected: "SELECT * FROM accounts WHERE id IN (?, ?, ?)",
			args:     3,
		},
		{
			name: "with limit and offset",
			build: func() *QueryBuilder {
				return NewQuery("posts").Limit(10).Offset(20)
			},
			expected: "SELECT * FROM posts LIMIT 10 OFFSET 20",
		},
		{
			name: "offset without limit",
			build: func() *QueryBuilder {
				return NewQuery("posts").Offset(20)
			},
			expected: "SELECT * FROM posts LIMIT -1 OFFSET 20",
		},
		{
			name: "empty in filter",
			build: func() *QueryBuilder {
				return NewQuery("accounts").Where("owner_id", "u1").Filter("id", OpIn, []any{})
			},
			expected: "SELECT * FROM accounts WHERE owner_id = ? AND 1 = 0",
			args:     1,
		},
		{
			name: "null check",
			build: func() *QueryBuilder {
				return NewQuery("posts").Filter("posted_at", OpIsNull, nil)
			},
			expected: "SELECT * FROM posts WHERE posted_at IS NULL",
		},
		{
			name: "complex query",
			build: func() *QueryBuilder {
				return NewQuery("posts").
					Select("id", "status", "account_id").
					Where("schedule_id", "sched-1").
					Filter("created_at", OpGte, "2026-01-01T00:00:00Z").
					OrderByDesc("created_at").
					Limit(10)
			},
			expected: "SELECT id, status, account_id FROM posts WHERE schedule_id = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 10",
			args:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build().Build()
			if sql != tt.expected {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.expected, sql)
			}
			if len(args) != tt.args {
				t.Errorf("expected %d args, got %d", tt.args, len(args))
			}
		})
	}
}

func TestBuildCount(t *testing.T) {
	sql, args := NewQuery("posts").Where("status", "pending").OrderBy("id").Limit(5).BuildCount()

	expected := "SELECT COUNT(*) FROM posts WHERE status = ?"
	if sql != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, sql)
	}
	if len(args) != 1 {
		t.Errorf("expected 1 arg, got %d", len(args))
	}
}

func TestParseSortString(t *testing.T) {
	tests := []struct {
		input string
		field string
		order SortOrder
	}{
		{"-created_at", "created_at", SortDesc},
		{"+scheduled_for", "scheduled_for", SortAsc},
		{"status", "status", SortAsc},
	}

	for _, tt := range tests {
		field, order := ParseSortString(tt.input)
		if field != tt.field {
			t.Errorf("input %q: expected field %q, got %q", tt.input, tt.field, field)
		}
		if order != tt.order {
			t.Errorf("input %q: expected order %v, got %v", tt.input, tt.order, order)
		}
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 8, 0, 0, 123, time.FixedZone("X", 3600))

	parsed, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("expected %v, got %v", now, parsed)
	}

	legacy, err := ParseTime("2026-03-14 07:00:00")
	if err != nil {
		t.Fatalf("parse sqlite datetime: %v", err)
	}
	if legacy.Hour() != 7 {
		t.Errorf("expected hour 7, got %d", legacy.Hour())
	}

	if NullTime(nil).Valid {
		t.Error("expected nil time to be NULL")
	}
	back, err := ParseNullTime(NullTime(&now))
	if err != nil || back == nil || !back.Equal(now) {
		t.Errorf("expected %v, got %v (%v)", now, back, err)
	}
}

func TestFormatTimeSortsChronologically(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(time.Nanosecond),
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 120*time.Microsecond),
	}

	for i := 1; i < len(times); i++ {
		prev, cur := FormatTime(times[i-1]), FormatTime(times[i])
		if prev >= cur {
			t.Errorf("%q should sort before %q", prev, cur)
		}
		if len(prev) != len(cur) {
			t.Errorf("width differs: %q vs %q", prev, cur)
		}
	}

	db := openTestDB(t, 1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE ts (at TEXT)"); err != nil {
		t.Fatal(err)
	}
	for i := len(times) - 1; i >= 0; i-- {
		if _, err := db.ExecContext(ctx, "INSERT INTO ts (at) VALUES (?)", FormatTime(times[i])); err != nil {
			t.Fatal(err)
		}
	}

	var n int
	cutoff := FormatTime(base.Add(500 * time.Millisecond))
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ts WHERE at < ?", cutoff).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows before %s = %d, want 2", cutoff, n)
	}
}

func init() {
	os.Setenv("TZ", "UTC")
}
