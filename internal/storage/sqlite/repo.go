// Package sqlite implements storage.Repository on modernc.org/sqlite.
//
// SQLite is the default backend: file-backed for real use, ":memory:" for
// tests. Timestamps are stored as RFC3339Nano strings for reliable
// round-trip behavior and easy debugging.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"recruitingetl/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_batch (
		id TEXT PRIMARY KEY,
		source_system TEXT NOT NULL,
		filename TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		uploaded_at TEXT NOT NULL,
		dataset_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		rows_read INTEGER NOT NULL DEFAULT 0,
		rows_inserted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS import_row (
		batch_id TEXT NOT NULL REFERENCES import_batch(id),
		row_index INTEGER NOT NULL,
		cells TEXT NOT NULL,
		errors TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (batch_id, row_index)
	)`,
	`CREATE TABLE IF NOT EXISTS org_unit (
		code TEXT PRIMARY KEY,
		parent_code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		echelon TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_market_share (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		fy INTEGER,
		rq TEXT,
		service TEXT,
		zip TEXT,
		rsid TEXT,
		station_name TEXT,
		contracts INTEGER,
		market_share REAL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_zip_category (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		zip TEXT,
		category TEXT,
		leads INTEGER,
		contracts INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS fact_sama_score (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		zip TEXT,
		rsid TEXT,
		station_name TEXT,
		sama_score REAL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_productivity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		fy INTEGER,
		month TEXT,
		rsid TEXT,
		recruiters INTEGER,
		contracts INTEGER,
		contracts_per_recruiter REAL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_test_score (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		zip TEXT,
		fy INTEGER,
		test_name TEXT,
		mean_score REAL,
		participants INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS fact_urbanicity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		zip TEXT,
		locale_code TEXT,
		locale_name TEXT,
		population INTEGER
	)`,
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertBatch(ctx context.Context, b storage.Batch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO import_batch
		 (id, source_system, filename, stored_path, content_hash, uploaded_at,
		  dataset_key, status, notes, rows_read, rows_inserted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SourceSystem, b.Filename, b.StoredPath, b.ContentHash,
		b.UploadedAt.UTC().Format(time.RFC3339Nano),
		b.DatasetKey, b.Status, b.Notes, b.RowsRead, b.RowsInserted,
	)
	return err
}

func (r *Repo) UpdateBatchStatus(ctx context.Context, id, status, notes string) error {
	var res sql.Result
	var err error
	if notes == "" {
		res, err = r.db.ExecContext(ctx,
			`UPDATE import_batch SET status = ? WHERE id = ?`, status, id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE import_batch SET status = ?, notes = ? WHERE id = ?`, status, notes, id)
	}
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func (r *Repo) SetBatchDataset(ctx context.Context, id, datasetKey string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_batch SET dataset_key = ? WHERE id = ?`, datasetKey, id)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func (r *Repo) SetBatchCounts(ctx context.Context, id string, rowsRead, rowsInserted int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_batch SET rows_read = ?, rows_inserted = ? WHERE id = ?`,
		rowsRead, rowsInserted, id)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func requireHit(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	return nil
}

func (r *Repo) GetBatch(ctx context.Context, id string) (storage.Batch, error) {
	var b storage.Batch
	var uploadedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_system, filename, stored_path, content_hash, uploaded_at,
		        dataset_key, status, notes, rows_read, rows_inserted
		 FROM import_batch WHERE id = ?`, id,
	).Scan(&b.ID, &b.SourceSystem, &b.Filename, &b.StoredPath, &b.ContentHash,
		&uploadedAt, &b.DatasetKey, &b.Status, &b.Notes, &b.RowsRead, &b.RowsInserted)
	if err == sql.ErrNoRows {
		return storage.Batch{}, fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	if err != nil {
		return storage.Batch{}, err
	}
	if b.UploadedAt, err = time.Parse(time.RFC3339Nano, uploadedAt); err != nil {
		return storage.Batch{}, fmt.Errorf("batch %s: bad uploaded_at %q: %w", id, uploadedAt, err)
	}
	return b, nil
}

func (r *Repo) ReplaceRawRows(ctx context.Context, batchID string, rows []storage.RawRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM import_row WHERE batch_id = ?`, batchID); err != nil {
		return err
	}

	for _, row := range rows {
		cells, err := json.Marshal(row.Cells)
		if err != nil {
			return err
		}
		errs, err := json.Marshal(emptyNotNull(row.Errors))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO import_row (batch_id, row_index, cells, errors) VALUES (?, ?, ?, ?)`,
			batchID, row.RowIndex, string(cells), string(errs)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) RecordRowErrors(ctx context.Context, batchID string, rowErrors map[int][]string) error {
	if len(rowErrors) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for idx, msgs := range rowErrors {
		b, err := json.Marshal(emptyNotNull(msgs))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE import_row SET errors = ? WHERE batch_id = ? AND row_index = ?`,
			string(b), batchID, idx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// emptyNotNull keeps stored JSON as [] rather than null for nil slices.
func emptyNotNull(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *Repo) InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	rowPH := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("sqlite: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPH)
		args = append(args, row...)
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (r *Repo) DeleteFactRowsForBatch(ctx context.Context, table, batchID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE batch_id = ?`, sqlIdent(table)), batchID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) UpsertOrgUnits(ctx context.Context, units []storage.OrgUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO org_unit (code, parent_code, name, echelon)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(code) DO UPDATE SET
			   parent_code = excluded.parent_code,
			   name = excluded.name,
			   echelon = excluded.echelon`,
			u.Code, u.ParentCode, u.Name, u.Echelon); err != nil {
			return fmt.Errorf("sqlite: upsert org_unit %s: %w", u.Code, err)
		}
	}
	return tx.Commit()
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
