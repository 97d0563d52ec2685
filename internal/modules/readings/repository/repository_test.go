package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rpi-weatherstation/internal/migrate"
	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func bmeAt(minutes int, temp float64) readings.BME280Reading {
	return readings.BME280Reading{
		Time:    base.Add(time.Duration(minutes) * time.Minute),
		Reading: bme280.Reading{TemperatureC: temp, PressureHPa: 1013.25, HumidityPct: 48.5},
		Source:  readings.NewSource("/dev/i2c-1", bme280.Address),
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestBME280_insertAndRange(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	for i := range 5 {
		if err := repo.InsertBME280(ctx, bmeAt(i*10, 20+float64(i))); err != nil {
			t.Fatalf("InsertBME280: %v", err)
		}
	}

	all, err := repo.GetBME280Readings(ctx, time.Time{}, time.Time{}, 100)
	if err != nil {
		t.Fatalf("GetBME280Readings: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d readings; want 5", len(all))
	}
	if all[0].TemperatureC != 24 || !all[0].Time.Equal(base.Add(40*time.Minute)) {
		t.Errorf("newest = %+v; want 24 °C at +40m", all[0])
	}
	if all[0].Address != "0x76" || all[0].Bus != "/dev/i2c-1" {
		t.Errorf("source = %+v", all[0].Source)
	}

	window, err := repo.GetBME280Readings(ctx, base.Add(10*time.Minute), base.Add(30*time.Minute), 100)
	if err != nil {
		t.Fatalf("GetBME280Readings window: %v", err)
	}
	if len(window) != 3 {
		t.Errorf("window has %d readings; want 3 (bounds inclusive)", len(window))
	}

	limited, err := repo.GetBME280Readings(ctx, base.Add(10*time.Minute), time.Time{}, 2)
	if err != nil {
		t.Fatalf("GetBME280Readings limited: %v", err)
	}
	if len(limited) != 2 || limited[1].TemperatureC != 23 {
		t.Errorf("limited = %+v", limited)
	}
}

func TestRange_emptyIsNotNil(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	got, err := repo.GetVEML7700Readings(context.Background(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("GetVEML7700Readings: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v; want an empty slice", got)
	}
}

func TestVEML7700_roundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	in := readings.VEML7700Reading{
		Time: base,
		Reading: veml7700.Reading{
			ALS: 65535, White: 65535, Lux: 15099.49, Saturated: true, Gain: 0.125, IntegrationTimeMS: 25,
		},
		Source: readings.NewSource("sim", veml7700.Address),
	}
	if err := repo.InsertVEML7700(ctx, in); err != nil {
		t.Fatalf("InsertVEML7700: %v", err)
	}
	got, err := repo.GetVEML7700Readings(ctx, time.Time{}, time.Time{}, 1)
	if err != nil {
		t.Fatalf("GetVEML7700Readings: %v", err)
	}
	if len(got) != 1 || got[0] != in {
		t.Errorf("got %+v; want %+v", got, in)
	}
}

func TestSGP40_optionalIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	idx := 142
	withIndex := readings.SGP40Reading{
		Time:         base,
		Sample:       sgp40.Sample{SRAW: 29876, VOCIndex: &idx, Label: "Moderate", Rating: "***"},
		TemperatureC: 21.3, HumidityPct: 44.1,
	}
	rawOnly := readings.SGP40Reading{
		Time:         base.Add(time.Minute),
		Sample:       sgp40.Sample{SRAW: 30001},
		TemperatureC: 25, HumidityPct: 50,
	}
	for _, r := range []readings.SGP40Reading{withIndex, rawOnly} {
		if err := repo.InsertSGP40(ctx, r); err != nil {
			t.Fatalf("InsertSGP40: %v", err)
		}
	}

	got, err := repo.GetSGP40Readings(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("GetSGP40Readings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d readings; want 2", len(got))
	}
	if got[0].VOCIndex != nil || got[0].Label != "" || got[0].SRAW != 30001 {
		t.Errorf("raw-only reading = %+v", got[0])
	}
	if got[1].VOCIndex == nil || *got[1].VOCIndex != 142 || got[1].Rating != "***" || got[1].HumidityPct != 44.1 {
		t.Errorf("indexed reading = %+v", got[1])
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewRepository(db)
	for i := range 4 {
		if err := repo.InsertBME280(ctx, bmeAt(i*60, 20)); err != nil {
			t.Fatalf("InsertBME280: %v", err)
		}
	}
	if err := repo.InsertSGP40(ctx, readings.SGP40Reading{Time: base}); err != nil {
		t.Fatalf("InsertSGP40: %v", err)
	}

	n, err := repo.Purge(ctx, base.Add(60*time.Minute))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 3 {
		t.Errorf("Purge removed %d rows; want 3 (cutoff inclusive)", n)
	}
	if got := countRows(t, db, "bme280_readings"); got != 2 {
		t.Errorf("bme280 rows left = %d; want 2", got)
	}
	if got := countRows(t, db, "sgp40_readings"); got != 0 {
		t.Errorf("sgp40 rows left = %d; want 0", got)
	}
}

func TestSnapshotSizes_oncePerDay(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewRepository(db)
	if err := repo.InsertBME280(ctx, bmeAt(0, 19.5)); err != nil {
		t.Fatalf("InsertBME280: %v", err)
	}

	taken, err := repo.SnapshotSizes(ctx, base)
	if err != nil {
		t.Fatalf("SnapshotSizes: %v", err)
	}
	if !taken {
		t.Fatal("first snapshot of the day not taken")
	}
	if got := countRows(t, db, "db_size_snapshots"); got != 1+len(trackedTables) {
		t.Errorf("snapshot rows = %d; want %d", got, 1+len(trackedTables))
	}

	taken, err = repo.SnapshotSizes(ctx, base.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("SnapshotSizes later that day: %v", err)
	}
	if taken {
		t.Error("second snapshot on the same day taken")
	}

	taken, err = repo.SnapshotSizes(ctx, base.Add(24*time.Hour))
	if err != nil || !taken {
		t.Errorf("next day snapshot = %v, %v; want taken", taken, err)
	}
}

func TestGetLatestSizeSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	if err := repo.InsertBME280(ctx, bmeAt(0, 19.5)); err != nil {
		t.Fatalf("InsertBME280: %v", err)
	}
	for _, day := range []time.Time{base, base.Add(24 * time.Hour)} {
		if _, err := repo.SnapshotSizes(ctx, day); err != nil {
			t.Fatalf("SnapshotSizes: %v", err)
		}
	}

	got, err := repo.GetLatestSizeSnapshots(ctx)
	if err != nil {
		t.Fatalf("GetLatestSizeSnapshots: %v", err)
	}
	if len(got) != 1+len(trackedTables) {
		t.Fatalf("got %d rows; want %d", len(got), 1+len(trackedTables))
	}
	byName := map[string]SizeSnapshot{}
	for _, s := range got {
		if !s.Time.Equal(base.Add(24 * time.Hour)) {
			t.Errorf("snapshot %s from %v; want the latest day", s.ObjectName, s.Time)
		}
		byName[s.ObjectName] = s
	}
	main := byName["main"]
	if main.ObjectType != "db" || main.Method != MethodPragmaPages || main.Bytes <= 0 {
		t.Errorf("db snapshot = %+v", main)
	}
	bme := byName["bme280_readings"]
	if bme.ObjectType != "table" || bme.Bytes <= 0 {
		t.Errorf("bme280 table snapshot = %+v", bme)
	}
	if bme.Method != MethodDBStat && bme.Method != MethodPayloadEstimate {
		t.Errorf("method = %q", bme.Method)
	}
}

func TestPayloadEstimate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	if _, err := db.Exec(`CREATE TABLE blobs (a TEXT, b BLOB, c INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO blobs VALUES ('abcd', x'0102', NULL), ('xy', NULL, 7)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	bytes, method, err := tableSize(ctx, db, "blobs", false)
	if err != nil {
		t.Fatalf("tableSize: %v", err)
	}
	// 'abcd' + 2 blob bytes + 'xy' + '7' cast to text
	if bytes != 9 || method != MethodPayloadEstimate {
		t.Errorf("tableSize = %d, %q; want 9, payload_estimate", bytes, method)
	}
}

func TestSink(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	s := Sink{Repo: NewRepository(db)}
	if err := s.WriteBME280(ctx, bmeAt(0, 20)); err != nil {
		t.Fatalf("WriteBME280: %v", err)
	}
	if err := s.WriteVEML7700(ctx, readings.VEML7700Reading{Time: base}); err != nil {
		t.Fatalf("WriteVEML7700: %v", err)
	}
	if err := s.WriteSGP40(ctx, readings.SGP40Reading{Time: base}); err != nil {
		t.Fatalf("WriteSGP40: %v", err)
	}
	for _, table := range []string{"bme280_readings", "veml7700_readings", "sgp40_readings"} {
		if n := countRows(t, db, table); n != 1 {
			t.Errorf("%s rows = %d; want 1", table, n)
		}
	}
}
