package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS batch_runs (
  id               TEXT PRIMARY KEY,
  kind             TEXT NOT NULL CHECK (kind IN ('entry','exit')),
  board_id         INTEGER NOT NULL,
  group_id         TEXT NOT NULL,
  report_group_id  TEXT,
  trigger_user_id  INTEGER,
  ok               INTEGER NOT NULL CHECK (ok IN (0,1)),
  blocked          INTEGER NOT NULL CHECK (blocked IN (0,1)),
  reason           TEXT,
  missing_count    INTEGER NOT NULL DEFAULT 0,
  row_count        INTEGER NOT NULL DEFAULT 0,
  warnings         TEXT,
  error            TEXT,
  started_at       DATETIME NOT NULL,
  finished_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON batch_runs(started_at);
CREATE TABLE IF NOT EXISTS batch_results (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
  position        INTEGER NOT NULL,
  item_id         INTEGER NOT NULL,
  ok              INTEGER NOT NULL CHECK (ok IN (0,1)),
  barcode         TEXT,
  qty             TEXT,
  stock_from      TEXT,
  stock_to        TEXT,
  catalog_id      INTEGER,
  report_item_id  INTEGER,
  reason          TEXT,
  error           TEXT,
  UNIQUE(run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_results_run ON batch_results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_barcode ON batch_results(barcode);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// RecordRun stores a run and its row results in one transaction. Recording
// the same run id twice replaces the earlier copy.
func (d *DB) RecordRun(ctx context.Context, r Run) (err error) {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id")
	}
	var warnings interface{}
	if len(r.Warnings) > 0 {
		b, merr := json.Marshal(r.Warnings)
		if merr != nil {
			return merr
		}
		warnings = string(b)
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM batch_results WHERE run_id = ?`, r.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO batch_runs(id, kind, board_id, group_id, report_group_id, trigger_user_id, ok, blocked, reason, missing_count, row_count, warnings, error, started_at, finished_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Kind, r.BoardID, r.GroupID, nullIfEmpty(r.ReportGroupID), nullIfZero(r.TriggerUserID),
		boolToInt(r.OK), boolToInt(r.Blocked), nullIfEmpty(r.Reason), r.MissingCount, r.Count, warnings, nullIfEmpty(r.Error),
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return err
	}

	for i, res := range r.Results {
		_, err = tx.ExecContext(ctx, `INSERT INTO batch_results(run_id, position, item_id, ok, barcode, qty, stock_from, stock_to, catalog_id, report_item_id, reason, error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
			r.ID, i, res.ItemID, boolToInt(res.OK), nullIfEmpty(res.Barcode), nullIfEmpty(res.Qty), nullIfEmpty(res.From), nullIfEmpty(res.To),
			nullIfZero(res.CatalogID), nullIfZero(res.ReportItemID), nullIfEmpty(res.Reason), nullIfEmpty(res.Error))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const runColumns = "id, kind, board_id, group_id, report_group_id, trigger_user_id, ok, blocked, reason, missing_count, row_count, warnings, error, started_at, finished_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                                Run
		reportGroup, reason, warns, errS sql.NullString
		triggerUser                      sql.NullInt64
		ok, blocked                      int
		startedAt, finishedAt            string
	)
	if err := s.Scan(&r.ID, &r.Kind, &r.BoardID, &r.GroupID, &reportGroup, &triggerUser, &ok, &blocked, &reason, &r.MissingCount, &r.Count, &warns, &errS, &startedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	r.ReportGroupID = reportGroup.String
	r.TriggerUserID = triggerUser.Int64
	r.OK = ok == 1
	r.Blocked = blocked == 1
	r.Reason = reason.String
	r.Error = errS.String
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = parseTime(finishedAt)
	if warns.Valid && warns.String != "" {
		if err := json.Unmarshal([]byte(warns.String), &r.Warnings); err != nil {
			return Run{}, fmt.Errorf("run %s warnings: %w", r.ID, err)
		}
	}
	return r, nil
}

// ListRecentRuns returns the most recent runs, newest first, without their
// row results.
func (d *DB) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT "+runColumns+" FROM batch_runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one run with its row results in batch order.
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(d.sql.QueryRowContext(ctx, "SELECT "+runColumns+" FROM batch_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.sql.QueryContext(ctx, `SELECT item_id, ok, barcode, qty, stock_from, stock_to, catalog_id, report_item_id, reason, error FROM batch_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res                                  RunResult
			ok                                   int
			barcode, qty, from, to, reason, errS sql.NullString
			catalogID, reportItemID              sql.NullInt64
		)
		if err := rows.Scan(&res.ItemID, &ok, &barcode, &qty, &from, &to, &catalogID, &reportItemID, &reason, &errS); err != nil {
			return nil, err
		}
		res.OK = ok == 1
		res.Barcode = barcode.String
		res.Qty = qty.String
		res.From = from.String
		res.To = to.String
		res.CatalogID = catalogID.Int64
		res.ReportItemID = reportItemID.Int64
		res.Reason = reason.String
		res.Error = errS.String
		r.Results = append(r.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStats aggregates runs and row outcomes per batch kind.
func (d *DB) GetStats(ctx context.Context) ([]KindStats, error) {
	query := `
		SELECT
			r.kind,
			COUNT(*),
			COALESCE(SUM(r.blocked), 0),
			COALESCE(SUM(CASE WHEN r.ok = 0 AND r.blocked = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM((SELECT COUNT(*) FROM batch_results b WHERE b.run_id = r.id AND b.ok = 1)), 0),
			COALESCE(SUM((SELECT COUNT(*) FROM batch_results b WHERE b.run_id = r.id AND b.ok = 0)), 0)
		FROM
			batch_runs r
		GROUP BY
			r.kind
		ORDER BY
			r.kind;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []KindStats
	for rows.Next() {
		var s KindStats
		if err := rows.Scan(&s.Kind, &s.Runs, &s.Blocked, &s.Failed, &s.RowsOK, &s.RowsFailed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// Exec runs a raw statement, used by the interactive shell.
func (d *DB) Exec(ctx context.Context, query string) (int64, error) {
	res, err := d.sql.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query runs a raw query and returns the column names and every row
// rendered as text.
func (d *DB) Query(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		line := make([]string, len(cols))
		for i, v := range vals {
			switch x := v.(type) {
			case nil:
				line[i] = "NULL"
			case []byte:
				line[i] = string(x)
			default:
				line[i] = fmt.Sprint(x)
			}
		}
		out = append(out, line)
	}
	return cols, out, rows.Err()
}
