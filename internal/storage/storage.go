// Package storage defines the backend-agnostic persistence interface for the
// ingestion pipeline and the factory that selects a backend at runtime.
//
// Backends register themselves from init() in their own packages; importing
// internal/storage/all links every backend into a binary. The interface is
// intentionally minimal: exactly the operations the ingestion orchestrator
// and loaders need, with each backend free to implement the semantics in its
// own dialect (Postgres ON CONFLICT, SQLite upsert, MSSQL update-then-insert).
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Batch lifecycle states. Transitions are strictly forward:
// RECEIVED -> VALIDATING -> LOADED or ERROR.
const (
	StatusReceived   = "RECEIVED"
	StatusValidating = "VALIDATING"
	StatusLoaded     = "LOADED"
	StatusError      = "ERROR"
)

// ErrBatchNotFound is returned by GetBatch for unknown ids.
var ErrBatchNotFound = errors.New("batch not found")

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Batch is one ingestion attempt for one uploaded file.
type Batch struct {
	ID           string
	SourceSystem string
	Filename     string
	StoredPath   string
	ContentHash  string
	UploadedAt   time.Time
	DatasetKey   string
	Status       string
	Notes        string
	RowsRead     int
	RowsInserted int
}

// RawRow is one data row of an uploaded file as received, before any typing.
// Cells and Errors are stored as JSON in every backend.
type RawRow struct {
	BatchID  string
	RowIndex int
	Cells    []string
	Errors   []string
}

// OrgUnit is one node of the recruiting command hierarchy.
type OrgUnit struct {
	Code       string
	ParentCode string
	Name       string
	Echelon    string
}

// Repository is the backend-agnostic persistence interface.
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates all tables if they do not exist. Idempotent;
	// called once at startup.
	EnsureSchema(ctx context.Context) error

	// InsertBatch records a new batch in its initial state.
	InsertBatch(ctx context.Context, b Batch) error

	// UpdateBatchStatus moves a batch to a new lifecycle state. Notes
	// replaces the stored notes when non-empty.
	UpdateBatchStatus(ctx context.Context, id, status, notes string) error

	// SetBatchDataset records the classified dataset key.
	SetBatchDataset(ctx context.Context, id, datasetKey string) error

	// SetBatchCounts records row totals after loading.
	SetBatchCounts(ctx context.Context, id string, rowsRead, rowsInserted int) error

	// GetBatch returns a batch by id, or ErrBatchNotFound.
	GetBatch(ctx context.Context, id string) (Batch, error)

	// ReplaceRawRows deletes any raw rows stored for the batch and inserts
	// the given ones. Reprocessing a batch therefore never duplicates raws.
	ReplaceRawRows(ctx context.Context, batchID string, rows []RawRow) error

	// RecordRowErrors attaches per-row error messages (keyed by row index)
	// to already-stored raw rows.
	RecordRowErrors(ctx context.Context, batchID string, rowErrors map[int][]string) error

	// InsertFactRows bulk-inserts typed rows into a fact table and returns
	// the number inserted. Fact inserts are additive; use
	// DeleteFactRowsForBatch first when reloading a batch.
	InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// DeleteFactRowsForBatch removes a batch's rows from one fact table and
	// returns the number deleted.
	DeleteFactRowsForBatch(ctx context.Context, table, batchID string) (int64, error)

	// UpsertOrgUnits inserts or updates hierarchy nodes keyed by code.
	UpsertOrgUnits(ctx context.Context, units []OrgUnit) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering
// the same kind twice panics; ambiguous backend selection should fail fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Repository using the registered backend factory.
//
// Errors:
//   - cfg.Kind empty or not registered.
//   - Whatever error the factory returns (bad DSN, unreachable server).
func Open(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, for error messages and CLI
// usage text.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
