// Package metrics is a minimal instrumentation facade.
//
// Pipeline code records counters and histograms through package-level
// functions; the process wires a concrete Backend (or none) at startup. The
// default backend is a no-op, so library code never checks whether metrics
// are configured.
//
// Metric families recorded by the pipeline:
//
//	ingest_batches_total                          counter
//	ingest_rows_total{kind}                       counter, kind = dataset key
//	ingest_step_total{step,status}                counter
//	ingest_step_duration_seconds{step,status}     histogram
package metrics

import (
	"sync/atomic"
	"time"
)

// Labels tags one observation. Treat as read-only after passing in.
type Labels map[string]string

// Backend receives observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations. The process
// should Close such backends before exit.
type Flusher interface {
	Flush() error
	Close() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// holder keeps the stored concrete type constant across SetBackend calls,
// which atomic.Value requires.
type holder struct {
	b Backend
}

var current atomic.Value

func init() {
	current.Store(holder{nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once during startup,
// before pipeline work begins; nil restores the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram records one histogram sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// ObserveDuration records an elapsed time in seconds since start.
func ObserveDuration(name string, start time.Time, labels Labels) {
	backend().ObserveHistogram(name, time.Since(start).Seconds(), labels)
}
