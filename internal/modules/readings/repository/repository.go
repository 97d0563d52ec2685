package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rpi-weatherstation/internal/readings"
)

//go:embed sql/insert-bme280.sql
var insertBME280SQL string

//go:embed sql/insert-veml7700.sql
var insertVEML7700SQL string

//go:embed sql/insert-sgp40.sql
var insertSGP40SQL string

//go:embed sql/get-bme280-readings.sql
var getBME280ReadingsSQL string

//go:embed sql/get-veml7700-readings.sql
var getVEML7700ReadingsSQL string

//go:embed sql/get-sgp40-readings.sql
var getSGP40ReadingsSQL string

const timestampLayout = time.RFC3339

type ReadingsRepository interface {
	InsertBME280(ctx context.Context, r readings.BME280Reading) error
	InsertVEML7700(ctx context.Context, r readings.VEML7700Reading) error
	InsertSGP40(ctx context.Context, r readings.SGP40Reading) error

	// The range queries return the newest readings first. A zero from or
	// to leaves that end open.
	GetBME280Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.BME280Reading, error)
	GetVEML7700Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.VEML7700Reading, error)
	GetSGP40Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.SGP40Reading, error)

	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	SnapshotSizes(ctx context.Context, now time.Time) (bool, error)
	GetLatestSizeSnapshots(ctx context.Context) ([]SizeSnapshot, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ReadingsRepository {
	return &repositoryImpl{db: db}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *repositoryImpl) InsertBME280(ctx context.Context, v readings.BME280Reading) error {
	_, err := r.db.ExecContext(ctx, insertBME280SQL,
		formatTimestamp(v.Time), v.TemperatureC, v.PressureHPa, v.HumidityPct, v.Bus, v.Address)
	if err != nil {
		return fmt.Errorf("insert bme280 reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) InsertVEML7700(ctx context.Context, v readings.VEML7700Reading) error {
	_, err := r.db.ExecContext(ctx, insertVEML7700SQL,
		formatTimestamp(v.Time), v.ALS, v.White, v.Lux, v.Gain, v.IntegrationTimeMS, v.Saturated, v.Bus, v.Address)
	if err != nil {
		return fmt.Errorf("insert veml7700 reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) InsertSGP40(ctx context.Context, v readings.SGP40Reading) error {
	var index any
	if v.VOCIndex != nil {
		index = *v.VOCIndex
	}
	_, err := r.db.ExecContext(ctx, insertSGP40SQL,
		formatTimestamp(v.Time), v.SRAW, index, nullString(v.Label), nullString(v.Rating),
		v.TemperatureC, v.HumidityPct, v.Bus, v.Address)
	if err != nil {
		return fmt.Errorf("insert sgp40 reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) query(ctx context.Context, what, q string, from, to time.Time, limit int) (*sql.Rows, error) {
	rows, err := r.db.QueryContext(ctx, q, formatTimestamp(from), formatTimestamp(to), limit)
	if err != nil {
		return nil, fmt.Errorf("query %s readings: %w", what, err)
	}
	return rows, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close "+what+" rows", "error", err)
	}
}

func (r *repositoryImpl) GetBME280Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.BME280Reading, error) {
	rows, err := r.query(ctx, "bme280", getBME280ReadingsSQL, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "bme280")

	out := []readings.BME280Reading{}
	for rows.Next() {
		var rec readings.BME280Reading
		var ts string
		if err := rows.Scan(&ts, &rec.TemperatureC, &rec.PressureHPa, &rec.HumidityPct, &rec.Bus, &rec.Address); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetVEML7700Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.VEML7700Reading, error) {
	rows, err := r.query(ctx, "veml7700", getVEML7700ReadingsSQL, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "veml7700")

	out := []readings.VEML7700Reading{}
	for rows.Next() {
		var rec readings.VEML7700Reading
		var ts string
		if err := rows.Scan(&ts, &rec.ALS, &rec.White, &rec.Lux, &rec.Gain, &rec.IntegrationTimeMS,
			&rec.Saturated, &rec.Bus, &rec.Address); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetSGP40Readings(ctx context.Context, from, to time.Time, limit int) ([]readings.SGP40Reading, error) {
	rows, err := r.query(ctx, "sgp40", getSGP40ReadingsSQL, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "sgp40")

	out := []readings.SGP40Reading{}
	for rows.Next() {
		var rec readings.SGP40Reading
		var ts string
		var index sql.NullInt64
		var label, rating sql.NullString
		if err := rows.Scan(&ts, &rec.SRAW, &index, &label, &rating,
			&rec.TemperatureC, &rec.HumidityPct, &rec.Bus, &rec.Address); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		if index.Valid {
			i := int(index.Int64)
			rec.VOCIndex = &i
		}
		rec.Label, rec.Rating = label.String, rating.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// trackedTables are purged and sized.
var trackedTables = []string{"bme280_readings", "veml7700_readings", "sgp40_readings", "db_size_snapshots"}

// Purge deletes readings and snapshots taken at or before cutoff.
func (r *repositoryImpl) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range trackedTables {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp <= ?", formatTimestamp(cutoff))
		if err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return total, nil
}

// payloadEstimateSQL sums the stored size of every column of table. It
// stands in for dbstat when SQLite is built without it.
func payloadEstimateSQL(ctx context.Context, q querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return "", err
	}
	defer closeRows(rows, "table_info")
	var terms []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return "", err
		}
		terms = append(terms, fmt.Sprintf(`COALESCE(LENGTH(CAST("%s" AS BLOB)), 0)`, col))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(terms) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}
	return "SELECT COALESCE(SUM(" + strings.Join(terms, " + ") + "), 0) FROM " + table, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
