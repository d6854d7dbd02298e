// Package ingest orchestrates one file's trip through the pipeline: store,
// record, read, classify, load.
//
// Batch lifecycle is strictly forward. A batch is RECEIVED once the upload
// is recorded, VALIDATING while being read and classified, and ends LOADED
// or ERROR. Row-level problems never fail a batch: rejected rows are
// persisted next to their raw data and the batch still loads. Structural
// problems (unreadable file, no classification, missing columns, storage
// failures) end the batch in ERROR with the cause in its notes.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"recruitingetl/internal/classify"
	"recruitingetl/internal/loader"
	"recruitingetl/internal/metrics"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// UnclassifiedError is returned when no dataset profile matches a file's
// columns. The batch is recorded in ERROR state with dataset key
// "unclassified" so the upload can be inspected and the registry extended.
type UnclassifiedError struct {
	Columns []string
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("no dataset profile matches columns: %s", strings.Join(e.Columns, ", "))
}

// Summary reports the outcome of processing one batch.
type Summary struct {
	BatchID      string
	DatasetKey   string
	Confidence   float64
	Status       string
	RowsRead     int
	RowsInserted int
	RowErrors    int
}

// Ingestor runs the pipeline against one repository and registry.
type Ingestor struct {
	Repo     storage.Repository
	Registry *registry.Registry
	Logger   Logger

	// UploadDir, when set, receives a content-addressed copy of every
	// ingested file; the batch's stored path points at the copy. When empty
	// the batch references the original path.
	UploadDir string

	classifier *classify.Classifier

	// Test seams.
	now   func() time.Time
	newID func() string
}

// New builds an Ingestor. The registry must be validated.
func New(repo storage.Repository, reg *registry.Registry, logger Logger) *Ingestor {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Ingestor{
		Repo:       repo,
		Registry:   reg,
		Logger:     logger,
		classifier: classify.New(reg),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// ProcessFile ingests one file as a new batch.
//
// The returned Summary is valid whenever a batch was recorded, including
// when err is non-nil; callers report both.
func (in *Ingestor) ProcessFile(ctx context.Context, path, sourceSystem string) (Summary, error) {
	hash, err := hashFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("hash upload: %w", err)
	}

	b := storage.Batch{
		ID:           in.newID(),
		SourceSystem: sourceSystem,
		Filename:     filepath.Base(path),
		StoredPath:   path,
		ContentHash:  hash,
		UploadedAt:   in.now().UTC(),
		Status:       storage.StatusReceived,
	}

	if in.UploadDir != "" {
		stored, err := in.storeUpload(path, b.ID)
		if err != nil {
			return Summary{}, err
		}
		b.StoredPath = stored
	}

	if err := in.Repo.InsertBatch(ctx, b); err != nil {
		return Summary{}, fmt.Errorf("record batch: %w", err)
	}
	metrics.IncCounter("ingest_batches_total", 1, nil)
	in.Logger.Printf("batch=%s status=RECEIVED file=%s hash=%s", b.ID, b.Filename, hash[:12])

	return in.process(ctx, b)
}

// Reprocess re-runs the pipeline for an existing batch from its stored file,
// keeping the batch id. Raw rows are replaced; fact rows are additive, so
// callers wanting a clean reload should clear the batch's fact rows first
// via Repository.DeleteFactRowsForBatch.
func (in *Ingestor) Reprocess(ctx context.Context, batchID string) (Summary, error) {
	b, err := in.Repo.GetBatch(ctx, batchID)
	if err != nil {
		return Summary{}, err
	}
	in.Logger.Printf("batch=%s reprocess file=%s", b.ID, b.Filename)
	return in.process(ctx, b)
}

func (in *Ingestor) process(ctx context.Context, b storage.Batch) (Summary, error) {
	sum := Summary{BatchID: b.ID, Status: storage.StatusError}

	// Structural failures (unsupported format, empty file, no header) end
	// the batch before it ever enters VALIDATING.
	tbl, err := step(in, "read", func() (*tabfile.Table, error) {
		return tabfile.Read(b.StoredPath, tabfile.Options{Synonyms: in.Registry.Synonyms})
	})
	if err != nil {
		return sum, in.fail(ctx, &sum, b.ID, fmt.Errorf("read %s: %w", b.Filename, err))
	}
	sum.RowsRead = len(tbl.Rows)

	if err := in.Repo.UpdateBatchStatus(ctx, b.ID, storage.StatusValidating, ""); err != nil {
		return sum, err
	}

	raws := make([]storage.RawRow, len(tbl.Rows))
	for i, row := range tbl.Rows {
		raws[i] = storage.RawRow{BatchID: b.ID, RowIndex: i, Cells: row}
	}
	if err := in.Repo.ReplaceRawRows(ctx, b.ID, raws); err != nil {
		return sum, in.fail(ctx, &sum, b.ID, fmt.Errorf("store raw rows: %w", err))
	}

	match, err := step(in, "classify", func() (classify.Match, error) {
		m := in.classifier.Classify(tbl.Canonical, b.SourceSystem)
		if !m.Matched() {
			return m, &UnclassifiedError{Columns: nonEmpty(tbl.Canonical)}
		}
		return m, nil
	})
	if err != nil {
		_ = in.Repo.SetBatchDataset(ctx, b.ID, "unclassified")
		return sum, in.fail(ctx, &sum, b.ID, err)
	}
	sum.DatasetKey = match.Key
	sum.Confidence = match.Confidence
	if err := in.Repo.SetBatchDataset(ctx, b.ID, match.Key); err != nil {
		return sum, in.fail(ctx, &sum, b.ID, err)
	}
	in.Logger.Printf("batch=%s dataset=%s confidence=%.2f rows=%d",
		b.ID, match.Key, match.Confidence, sum.RowsRead)

	l, ok := loader.ForKey(match.Key)
	if !ok {
		return sum, in.fail(ctx, &sum, b.ID, fmt.Errorf("no loader for dataset %s", match.Key))
	}

	res, err := step(in, "load", func() (loader.Result, error) {
		return l.Load(ctx, in.Repo, tbl, b.ID)
	})
	if err != nil {
		return sum, in.fail(ctx, &sum, b.ID, err)
	}
	sum.RowsInserted = res.RowsInserted
	sum.RowErrors = len(res.RowErrors)
	metrics.IncCounter("ingest_rows_total", float64(res.RowsInserted), metrics.Labels{"kind": match.Key})

	if len(res.RowErrors) > 0 {
		rowErrs := make(map[int][]string, len(res.RowErrors))
		for _, re := range res.RowErrors {
			rowErrs[re.RowIndex] = re.Messages
		}
		if err := in.Repo.RecordRowErrors(ctx, b.ID, rowErrs); err != nil {
			return sum, in.fail(ctx, &sum, b.ID, fmt.Errorf("record row errors: %w", err))
		}
	}

	if err := in.Repo.SetBatchCounts(ctx, b.ID, sum.RowsRead, sum.RowsInserted); err != nil {
		return sum, in.fail(ctx, &sum, b.ID, err)
	}

	notes := ""
	if sum.RowErrors > 0 {
		notes = fmt.Sprintf("%d of %d rows rejected", sum.RowErrors, sum.RowsRead)
	}
	if err := in.Repo.UpdateBatchStatus(ctx, b.ID, storage.StatusLoaded, notes); err != nil {
		return sum, err
	}
	sum.Status = storage.StatusLoaded
	in.Logger.Printf("batch=%s status=LOADED inserted=%d rejected=%d",
		b.ID, sum.RowsInserted, sum.RowErrors)
	return sum, nil
}

// fail moves the batch to ERROR with the cause in its notes. The original
// error is returned for the caller; a status-update failure is attached.
func (in *Ingestor) fail(ctx context.Context, sum *Summary, batchID string, cause error) error {
	sum.Status = storage.StatusError
	in.Logger.Printf("batch=%s status=ERROR err=%v", batchID, cause)
	if err := in.Repo.UpdateBatchStatus(ctx, batchID, storage.StatusError, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("mark batch failed: %w", err))
	}
	return cause
}

// step times one pipeline stage and records its counters.
func step[T any](in *Ingestor, name string, fn func() (T, error)) (T, error) {
	start := in.now()
	v, err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := metrics.Labels{"step": name, "status": status}
	metrics.IncCounter("ingest_step_total", 1, labels)
	metrics.ObserveHistogram("ingest_step_duration_seconds", time.Since(start).Seconds(), labels)
	return v, err
}

// storeUpload copies the file into UploadDir named by batch id, preserving
// the extension the reader dispatches on.
func (in *Ingestor) storeUpload(path, batchID string) (string, error) {
	if err := os.MkdirAll(in.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(in.UploadDir, batchID+strings.ToLower(filepath.Ext(path)))

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return dst, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nonEmpty(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
