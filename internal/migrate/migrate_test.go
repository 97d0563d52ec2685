package migrate

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

func TestRun_embedded(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	pending, err := Pending(ctx, db)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Version != "0001" || pending[1].Version != "0002" {
		t.Fatalf("Pending = %+v", pending)
	}

	applied, err := Run(ctx, db)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied %d migrations; want 2", len(applied))
	}
	for _, table := range []string{"bme280_readings", "veml7700_readings", "sgp40_readings", "db_size_snapshots"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing", table)
		}
	}

	again, err := Run(ctx, db)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Run applied %d migrations", len(again))
	}
}

func TestRun_failedMigrationRollsBack(t *testing.T) {
	db := openMemory(t)
	fsys := fstest.MapFS{
		"sql/0001_ok.sql":     {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"sql/0002_broken.sql": {Data: []byte(`CREATE TABLE b (id INTEGER); CREATE TABLE oops (`)},
		"sql/README.md":       {Data: []byte("ignored")},
	}
	applied, err := run(context.Background(), db, fsys)
	if err == nil || !strings.Contains(err.Error(), "0002_broken.sql") {
		t.Fatalf("err = %v; want failure naming 0002_broken.sql", err)
	}
	if len(applied) != 1 || applied[0].Name != "ok" {
		t.Errorf("applied = %+v", applied)
	}
	if tableExists(t, db, "b") {
		t.Error("table from the failed migration was kept")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("schema_migrations has %d rows; want 1", n)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in            string
		version, name string
		ok            bool
	}{
		{"0001_readings.sql", "0001", "readings", true},
		{"0012_add_index.sql", "0012", "add_index", true},
		{"1_short.sql", "", "", false},
		{"0003_notes.txt", "", "", false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if v != tt.version || n != tt.name || ok != tt.ok {
			t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.in, v, n, ok)
		}
	}
}
