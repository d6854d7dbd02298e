// Package loader maps classified datasets to their fact tables.
//
// Each loader owns one dataset key: it knows which canonical columns it
// needs, how to coerce each cell, and which destination table its typed rows
// go to. Loading is row-tolerant: a required cell that fails coercion
// rejects only its row, an optional cell that fails degrades to a null
// field, and every rejected row comes back in Result.RowErrors so the
// orchestrator can persist the messages next to the raw data.
package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// Loader loads one dataset's rows into storage.
type Loader interface {
	// Load coerces and inserts every data row of tbl. Row-level failures do
	// not abort the load; structural failures (missing required columns,
	// storage errors) do.
	Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error)
}

// Result summarizes one load.
type Result struct {
	RowsInserted int
	RowErrors    []RowError
}

// RowError carries the coercion failures for one rejected row. RowIndex is
// the position within the table's data rows, not the original file line.
type RowError struct {
	RowIndex int
	Messages []string
}

// MissingColumnsError is returned when a classified file lacks columns its
// dataset requires. This is a structural failure: no rows are loaded.
type MissingColumnsError struct {
	DatasetKey string
	Columns    []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("dataset %s: missing required columns: %s",
		e.DatasetKey, strings.Join(e.Columns, ", "))
}

// loaders is a closed map: adding a dataset means adding an entry here
// alongside its registry profile, and the registry CLI cross-checks the two.
var loaders = map[string]Loader{
	registry.KeyMarketShare:  marketShareLoader{},
	registry.KeyZipCategory:  zipCategoryLoader{},
	registry.KeySama:         samaLoader{},
	registry.KeyProductivity: productivityLoader{},
	registry.KeyTestScores:   testScoresLoader{},
	registry.KeyUrbanicity:   urbanicityLoader{},
	registry.KeyOrgHierarchy: orgHierarchyLoader{},
}

// ForKey returns the loader for a dataset key.
func ForKey(key string) (Loader, bool) {
	l, ok := loaders[key]
	return l, ok
}

// Keys returns every dataset key with a loader, sorted.
func Keys() []string {
	out := make([]string, 0, len(loaders))
	for k := range loaders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
