// Package mssql implements storage.Repository on go-mssqldb.
//
// SQL Server lacks ON CONFLICT; upserts are update-then-insert inside a
// transaction, which is safe here because the pipeline is the only writer to
// org_unit during a load.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"recruitingetl/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// Guarded creates keep EnsureSchema idempotent; SQL Server has no
// CREATE TABLE IF NOT EXISTS.
var schemaStatements = []string{
	`IF OBJECT_ID('import_batch', 'U') IS NULL
	CREATE TABLE import_batch (
		id NVARCHAR(64) PRIMARY KEY,
		source_system NVARCHAR(64) NOT NULL,
		filename NVARCHAR(512) NOT NULL,
		stored_path NVARCHAR(1024) NOT NULL,
		content_hash NVARCHAR(128) NOT NULL,
		uploaded_at DATETIMEOFFSET NOT NULL,
		dataset_key NVARCHAR(128) NOT NULL DEFAULT '',
		status NVARCHAR(32) NOT NULL,
		notes NVARCHAR(MAX) NOT NULL DEFAULT '',
		rows_read INT NOT NULL DEFAULT 0,
		rows_inserted INT NOT NULL DEFAULT 0
	)`,
	`IF OBJECT_ID('import_row', 'U') IS NULL
	CREATE TABLE import_row (
		batch_id NVARCHAR(64) NOT NULL REFERENCES import_batch(id),
		row_index INT NOT NULL,
		cells NVARCHAR(MAX) NOT NULL,
		errors NVARCHAR(MAX) NOT NULL DEFAULT '[]',
		PRIMARY KEY (batch_id, row_index)
	)`,
	`IF OBJECT_ID('org_unit', 'U') IS NULL
	CREATE TABLE org_unit (
		code NVARCHAR(16) PRIMARY KEY,
		parent_code NVARCHAR(16) NOT NULL DEFAULT '',
		name NVARCHAR(256) NOT NULL DEFAULT '',
		echelon NVARCHAR(32) NOT NULL
	)`,
	`IF OBJECT_ID('fact_market_share', 'U') IS NULL
	CREATE TABLE fact_market_share (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		fy INT,
		rq NVARCHAR(8),
		service NVARCHAR(64),
		zip NVARCHAR(10),
		rsid NVARCHAR(16),
		station_name NVARCHAR(256),
		contracts INT,
		market_share FLOAT
	)`,
	`IF OBJECT_ID('fact_zip_category', 'U') IS NULL
	CREATE TABLE fact_zip_category (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		zip NVARCHAR(10),
		category NVARCHAR(64),
		leads INT,
		contracts INT
	)`,
	`IF OBJECT_ID('fact_sama_score', 'U') IS NULL
	CREATE TABLE fact_sama_score (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		zip NVARCHAR(10),
		rsid NVARCHAR(16),
		station_name NVARCHAR(256),
		sama_score FLOAT
	)`,
	`IF OBJECT_ID('fact_productivity', 'U') IS NULL
	CREATE TABLE fact_productivity (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		fy INT,
		month NVARCHAR(16),
		rsid NVARCHAR(16),
		recruiters INT,
		contracts INT,
		contracts_per_recruiter FLOAT
	)`,
	`IF OBJECT_ID('fact_test_score', 'U') IS NULL
	CREATE TABLE fact_test_score (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		zip NVARCHAR(10),
		fy INT,
		test_name NVARCHAR(128),
		mean_score FLOAT,
		participants INT
	)`,
	`IF OBJECT_ID('fact_urbanicity', 'U') IS NULL
	CREATE TABLE fact_urbanicity (
		id BIGINT IDENTITY PRIMARY KEY,
		batch_id NVARCHAR(64) NOT NULL,
		zip NVARCHAR(10),
		locale_code NVARCHAR(16),
		locale_name NVARCHAR(128),
		population INT
	)`,
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertBatch(ctx context.Context, b storage.Batch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO import_batch
		 (id, source_system, filename, stored_path, content_hash, uploaded_at,
		  dataset_key, status, notes, rows_read, rows_inserted)
		 VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10, @p11)`,
		b.ID, b.SourceSystem, b.Filename, b.StoredPath, b.ContentHash,
		b.UploadedAt.UTC(), b.DatasetKey, b.Status, b.Notes, b.RowsRead, b.RowsInserted,
	)
	return err
}

func (r *Repo) UpdateBatchStatus(ctx context.Context, id, status, notes string) error {
	query := `UPDATE import_batch SET status = @p1, notes = @p2 WHERE id = @p3`
	args := []any{status, notes, id}
	if notes == "" {
		query = `UPDATE import_batch SET status = @p1 WHERE id = @p2`
		args = []any{status, id}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func (r *Repo) SetBatchDataset(ctx context.Context, id, datasetKey string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_batch SET dataset_key = @p1 WHERE id = @p2`, datasetKey, id)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func (r *Repo) SetBatchCounts(ctx context.Context, id string, rowsRead, rowsInserted int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_batch SET rows_read = @p1, rows_inserted = @p2 WHERE id = @p3`,
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
	var uploadedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_system, filename, stored_path, content_hash, uploaded_at,
		        dataset_key, status, notes, rows_read, rows_inserted
		 FROM import_batch WHERE id = @p1`, id,
	).Scan(&b.ID, &b.SourceSystem, &b.Filename, &b.StoredPath, &b.ContentHash,
		&uploadedAt, &b.DatasetKey, &b.Status, &b.Notes, &b.RowsRead, &b.RowsInserted)
	if err == sql.ErrNoRows {
		return storage.Batch{}, fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	if err != nil {
		return storage.Batch{}, err
	}
	b.UploadedAt = uploadedAt.UTC()
	return b, nil
}

func (r *Repo) ReplaceRawRows(ctx context.Context, batchID string, rows []storage.RawRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM import_row WHERE batch_id = @p1`, batchID); err != nil {
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
			`INSERT INTO import_row (batch_id, row_index, cells, errors) VALUES (@p1, @p2, @p3, @p4)`,
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
			`UPDATE import_row SET errors = @p1 WHERE batch_id = @p2 AND row_index = @p3`,
			string(b), batchID, idx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

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

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mssql: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", n)
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (r *Repo) DeleteFactRowsForBatch(ctx context.Context, table, batchID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE batch_id = @p1`, sqlIdent(table)), batchID)
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
		res, err := tx.ExecContext(ctx,
			`UPDATE org_unit SET parent_code = @p1, name = @p2, echelon = @p3 WHERE code = @p4`,
			u.ParentCode, u.Name, u.Echelon, u.Code)
		if err != nil {
			return fmt.Errorf("mssql: update org_unit %s: %w", u.Code, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO org_unit (code, parent_code, name, echelon) VALUES (@p1, @p2, @p3, @p4)`,
				u.Code, u.ParentCode, u.Name, u.Echelon); err != nil {
				return fmt.Errorf("mssql: insert org_unit %s: %w", u.Code, err)
			}
		}
	}
	return tx.Commit()
}

func sqlIdent(id string) string {
	return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]`
}
