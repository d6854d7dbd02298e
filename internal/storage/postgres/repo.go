// Package postgres implements storage.Repository on pgx.
//
// This is the backend for shared deployments: the dashboard API reads the
// same database the pipeline writes. Connections come from a pgxpool sized
// by the DSN.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recruitingetl/internal/storage"
)

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_batch (
		id TEXT PRIMARY KEY,
		source_system TEXT NOT NULL,
		filename TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL,
		dataset_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		rows_read INTEGER NOT NULL DEFAULT 0,
		rows_inserted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS import_row (
		batch_id TEXT NOT NULL REFERENCES import_batch(id),
		row_index INTEGER NOT NULL,
		cells JSONB NOT NULL,
		errors JSONB NOT NULL DEFAULT '[]',
		PRIMARY KEY (batch_id, row_index)
	)`,
	`CREATE TABLE IF NOT EXISTS org_unit (
		code TEXT PRIMARY KEY,
		parent_code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		echelon TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_market_share (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		fy INTEGER,
		rq TEXT,
		service TEXT,
		zip TEXT,
		rsid TEXT,
		station_name TEXT,
		contracts INTEGER,
		market_share DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS fact_zip_category (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		zip TEXT,
		category TEXT,
		leads INTEGER,
		contracts INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS fact_sama_score (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		zip TEXT,
		rsid TEXT,
		station_name TEXT,
		sama_score DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS fact_productivity (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		fy INTEGER,
		month TEXT,
		rsid TEXT,
		recruiters INTEGER,
		contracts INTEGER,
		contracts_per_recruiter DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS fact_test_score (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		zip TEXT,
		fy INTEGER,
		test_name TEXT,
		mean_score DOUBLE PRECISION,
		participants INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS fact_urbanicity (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		zip TEXT,
		locale_code TEXT,
		locale_name TEXT,
		population INTEGER
	)`,
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertBatch(ctx context.Context, b storage.Batch) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO import_batch
		 (id, source_system, filename, stored_path, content_hash, uploaded_at,
		  dataset_key, status, notes, rows_read, rows_inserted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.SourceSystem, b.Filename, b.StoredPath, b.ContentHash,
		b.UploadedAt.UTC(), b.DatasetKey, b.Status, b.Notes, b.RowsRead, b.RowsInserted,
	)
	return err
}

func (r *Repo) UpdateBatchStatus(ctx context.Context, id, status, notes string) error {
	query := `UPDATE import_batch SET status = $1, notes = $2 WHERE id = $3`
	args := []any{status, notes, id}
	if notes == "" {
		query = `UPDATE import_batch SET status = $1 WHERE id = $2`
		args = []any{status, id}
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	return nil
}

func (r *Repo) SetBatchDataset(ctx context.Context, id, datasetKey string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE import_batch SET dataset_key = $1 WHERE id = $2`, datasetKey, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	return nil
}

func (r *Repo) SetBatchCounts(ctx context.Context, id string, rowsRead, rowsInserted int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE import_batch SET rows_read = $1, rows_inserted = $2 WHERE id = $3`,
		rowsRead, rowsInserted, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	return nil
}

func (r *Repo) GetBatch(ctx context.Context, id string) (storage.Batch, error) {
	var b storage.Batch
	var uploadedAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, source_system, filename, stored_path, content_hash, uploaded_at,
		        dataset_key, status, notes, rows_read, rows_inserted
		 FROM import_batch WHERE id = $1`, id,
	).Scan(&b.ID, &b.SourceSystem, &b.Filename, &b.StoredPath, &b.ContentHash,
		&uploadedAt, &b.DatasetKey, &b.Status, &b.Notes, &b.RowsRead, &b.RowsInserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Batch{}, fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	if err != nil {
		return storage.Batch{}, err
	}
	b.UploadedAt = uploadedAt.UTC()
	return b, nil
}

func (r *Repo) ReplaceRawRows(ctx context.Context, batchID string, rows []storage.RawRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM import_row WHERE batch_id = $1`, batchID); err != nil {
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO import_row (batch_id, row_index, cells, errors) VALUES ($1, $2, $3, $4)`,
			batchID, row.RowIndex, cells, errs); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) RecordRowErrors(ctx context.Context, batchID string, rowErrors map[int][]string) error {
	if len(rowErrors) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for idx, msgs := range rowErrors {
		b, err := json.Marshal(emptyNotNull(msgs))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE import_row SET errors = $1 WHERE batch_id = $2 AND row_index = $3`,
			b, batchID, idx); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
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
			return 0, fmt.Errorf("postgres: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	tag, err := r.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) DeleteFactRowsForBatch(ctx context.Context, table, batchID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE batch_id = $1`, sqlIdent(table)), batchID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) UpsertOrgUnits(ctx context.Context, units []storage.OrgUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, u := range units {
		if _, err := tx.Exec(ctx,
			`INSERT INTO org_unit (code, parent_code, name, echelon)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (code) DO UPDATE SET
			   parent_code = EXCLUDED.parent_code,
			   name = EXCLUDED.name,
			   echelon = EXCLUDED.echelon`,
			u.Code, u.ParentCode, u.Name, u.Echelon); err != nil {
			return fmt.Errorf("postgres: upsert org_unit %s: %w", u.Code, err)
		}
	}
	return tx.Commit(ctx)
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
