package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed sql/count-db-snapshots-on-day.sql
var countDBSnapshotsOnDaySQL string

//go:embed sql/insert-size-snapshot.sql
var insertSizeSnapshotSQL string

//go:embed sql/get-table-size-dbstat.sql
var getTableSizeDBStatSQL string

//go:embed sql/get-latest-size-snapshots.sql
var getLatestSizeSnapshotsSQL string

// Size measurement methods recorded with each snapshot row.
const (
	MethodPragmaPages     = "pragma_pages"
	MethodDBStat          = "dbstat"
	MethodPayloadEstimate = "payload_estimate"
)

type SizeSnapshot struct {
	Time       time.Time `json:"time_utc"`
	ObjectType string    `json:"object_type"`
	ObjectName string    `json:"object_name"`
	Bytes      int64     `json:"bytes"`
	Method     string    `json:"method"`
}

// SnapshotSizes records the database file size and the size of every
// tracked table, at most once per UTC day. It reports whether a snapshot
// was taken.
func (r *repositoryImpl) SnapshotSizes(ctx context.Context, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("size snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := now.UTC().Format(time.DateOnly)
	var n int
	if err := tx.QueryRowContext(ctx, countDBSnapshotsOnDaySQL, day).Scan(&n); err != nil {
		return false, fmt.Errorf("size snapshot: check %s: %w", day, err)
	}
	if n > 0 {
		return false, nil
	}

	ts := formatTimestamp(now)
	var pageCount, pageSize int64
	if err := tx.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return false, fmt.Errorf("size snapshot: page_count: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return false, fmt.Errorf("size snapshot: page_size: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertSizeSnapshotSQL, ts, "db", "main", pageCount*pageSize, MethodPragmaPages); err != nil {
		return false, fmt.Errorf("size snapshot: insert db size: %w", err)
	}

	useDBStat := hasDBStat(ctx, tx)
	for _, table := range trackedTables {
		bytes, method, err := tableSize(ctx, tx, table, useDBStat)
		if err != nil {
			return false, fmt.Errorf("size snapshot: %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, insertSizeSnapshotSQL, ts, "table", table, bytes, method); err != nil {
			return false, fmt.Errorf("size snapshot: insert %s size: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("size snapshot: %w", err)
	}
	return true, nil
}

func hasDBStat(ctx context.Context, q querier) bool {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM dbstat LIMIT 1").Scan(&one)
	if err != nil && err != sql.ErrNoRows {
		slog.Debug("dbstat unavailable, estimating table sizes from payload", "error", err)
		return false
	}
	return true
}

func tableSize(ctx context.Context, q querier, table string, useDBStat bool) (int64, string, error) {
	var bytes int64
	if useDBStat {
		if err := q.QueryRowContext(ctx, getTableSizeDBStatSQL, table).Scan(&bytes); err != nil {
			return 0, "", err
		}
		return bytes, MethodDBStat, nil
	}
	query, err := payloadEstimateSQL(ctx, q, table)
	if err != nil {
		return 0, "", err
	}
	if err := q.QueryRowContext(ctx, query).Scan(&bytes); err != nil {
		return 0, "", err
	}
	return bytes, MethodPayloadEstimate, nil
}

func (r *repositoryImpl) GetLatestSizeSnapshots(ctx context.Context) ([]SizeSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, getLatestSizeSnapshotsSQL)
	if err != nil {
		return nil, fmt.Errorf("query size snapshots: %w", err)
	}
	defer closeRows(rows, "size snapshot")

	out := []SizeSnapshot{}
	for rows.Next() {
		var s SizeSnapshot
		var ts string
		if err := rows.Scan(&ts, &s.ObjectType, &s.ObjectName, &s.Bytes, &s.Method); err != nil {
			return nil, err
		}
		if s.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
