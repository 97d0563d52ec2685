package db

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"rpi-weatherstation/internal/config"
)

type captureHandler struct {
	mu      sync.Mutex
	records []map[string]slog.Value
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.records = append(h.records, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i]["msg"].String() == "sql" {
			return h.records[i]
		}
	}
	t.Fatal("no sql log record")
	return nil
}

func openLogged(t *testing.T) (*sql.DB, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	connector, err := NewLoggingConnector(":memory:", slog.New(h))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, h
}

func TestLoggingConnector_exec(t *testing.T) {
	db, h := openLogged(t)
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	got := h.last(t)
	if got["op"].String() != "exec" || got["sql"].String() != `CREATE TABLE t (id INTEGER, name TEXT)` {
		t.Errorf("record = %v", got)
	}

	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (?, ?)`, 7, "veml"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got = h.last(t)
	args, ok := got["args"].Any().([]string)
	if !ok || len(args) != 2 || args[0] != "7" || args[1] != "veml" {
		t.Errorf("args = %#v", got["args"].Any())
	}
	if _, ok := got["elapsed"]; !ok {
		t.Error("no elapsed attribute")
	}
}

func TestLoggingConnector_query(t *testing.T) {
	db, h := openLogged(t)
	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := h.last(t); got["op"].String() != "query" || got["sql"].String() != "SELECT 1" {
		t.Errorf("record = %v", got)
	}
}

func TestLoggingConnector_preparedStatement(t *testing.T) {
	db, h := openLogged(t)
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	stmt, err := db.Prepare(`INSERT INTO t (id) VALUES (?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer func() { _ = stmt.Close() }()
	if _, err := stmt.Exec(42); err != nil {
		t.Fatalf("exec: %v", err)
	}
	got := h.last(t)
	if got["sql"].String() != `INSERT INTO t (id) VALUES (?)` {
		t.Errorf("sql = %q", got["sql"].String())
	}
}

func TestLoggingConnector_errorLogged(t *testing.T) {
	db, h := openLogged(t)
	if _, err := db.Exec(`SELECT * FROM missing`); err == nil {
		t.Fatal("query on a missing table succeeded")
	}
	got := h.last(t)
	if _, ok := got["err"]; !ok {
		t.Errorf("record %v has no err", got)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		SQLiteDriver:       "sqlite3",
		SQLitePath:         filepath.Join(dir, "nested", "weather.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
	}
	db, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q; want wal", mode)
	}
}

func TestOpen_logSQL(t *testing.T) {
	h := &captureHandler{}
	db, err := Open(config.Config{SQLiteDSN: ":memory:", DBLogSQL: true, SQLiteMaxOpenConns: 1}, slog.New(h))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()
	if _, err := db.Exec(`SELECT 1`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	h.last(t)
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"explicit dsn", config.Config{SQLiteDSN: "file::memory:?cache=shared"}, "file::memory:?cache=shared"},
		{"plain path", config.Config{SQLitePath: dir + "/a.db"},
			"file:" + dir + "/a.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"file uri with query", config.Config{SQLitePath: "file:" + dir + "/b.db?mode=rwc"},
			"file:" + dir + "/b.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestClose_nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v", err)
	}
}
