// Command ingest runs one file through the ingestion pipeline, or
// reprocesses a previously recorded batch.
//
// Usage:
//
//	ingest -file reports/market_fy25.csv
//	ingest -db-kind postgres -dsn "$DB_DSN" -file sama.xlsx -metrics-backend datadog
//	ingest -batch 6b8c1c2e-...            (reprocess from the stored upload)
//
// Exit status is nonzero when the batch ends in ERROR.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"recruitingetl/internal/ingest"
	"recruitingetl/internal/loader"
	"recruitingetl/internal/metrics"
	"recruitingetl/internal/metrics/datadog"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"

	// register all backends with the storage factory.
	_ "recruitingetl/internal/storage/all"
)

func main() {
	// Local development keeps DSNs in .env; absence is not an error.
	_ = godotenv.Load()

	var (
		dbKind         string
		dsn            string
		file           string
		batchID        string
		sourceSystem   string
		registryPath   string
		uploadDir      string
		metricsBackend string
	)

	flag.StringVar(&dbKind, "db-kind", envOr("DB_KIND", "sqlite"), "storage backend kind (sqlite, postgres, mssql)")
	flag.StringVar(&dsn, "dsn", envOr("DB_DSN", "recruiting.db"), "database DSN")
	flag.StringVar(&file, "file", "", "file to ingest (.csv, .txt, .xlsx, .xlsm)")
	flag.StringVar(&batchID, "batch", "", "reprocess an existing batch id instead of ingesting a file")
	flag.StringVar(&sourceSystem, "source-system", "USAREC", "source system tag recorded on the batch")
	flag.StringVar(&registryPath, "registry", "", "dataset registry JSON (built-in registry when empty)")
	flag.StringVar(&uploadDir, "upload-dir", envOr("UPLOAD_DIR", ""), "directory for stored copies of ingested files")
	flag.StringVar(&metricsBackend, "metrics-backend", envOr("METRICS_BACKEND", "none"), "metrics backend (none, datadog)")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	if (file == "") == (batchID == "") {
		fatalf("exactly one of -file or -batch is required")
	}

	reg, err := loadRegistry(registryPath)
	if err != nil {
		fatalf("%v", err)
	}

	switch metricsBackend {
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "ingest",
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			// Close stops the periodic flush loop and flushes one final time.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		// nop backend remains
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", metricsBackend)
	}

	ctx := context.Background()
	repo, err := storage.Open(ctx, storage.Config{Kind: dbKind, DSN: dsn})
	if err != nil {
		fatalf("open storage (kinds: %v): %v", storage.Kinds(), err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		fatalf("ensure schema: %v", err)
	}

	var logger ingest.Logger
	if *verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	in := ingest.New(repo, reg, logger)
	in.UploadDir = uploadDir

	start := time.Now()
	var sum ingest.Summary
	if batchID != "" {
		sum, err = in.Reprocess(ctx, batchID)
	} else {
		sum, err = in.ProcessFile(ctx, file, sourceSystem)
	}

	if sum.BatchID != "" {
		fmt.Printf("batch=%s status=%s dataset=%s rows_read=%d rows_inserted=%d rows_rejected=%d\n",
			sum.BatchID, sum.Status, sum.DatasetKey, sum.RowsRead, sum.RowsInserted, sum.RowErrors)
	}
	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	if err != nil {
		fatalf("%v", err)
	}
}

// loadRegistry returns the effective registry and verifies every profile has
// a loader, so misconfiguration fails before any batch is recorded.
func loadRegistry(path string) (*registry.Registry, error) {
	reg := registry.Default()
	if path != "" {
		var err error
		reg, err = registry.Load(path)
		if err != nil {
			return nil, err
		}
	}
	for _, key := range reg.Keys() {
		if _, ok := loader.ForKey(key); !ok {
			return nil, fmt.Errorf("registry profile %q has no loader", key)
		}
	}
	return reg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
