package datadog

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"recruitingetl/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName: "test",
		// Long interval: tests drive Flush explicitly.
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		step   string
		status string
	}{
		{name: "normal", step: "load", status: "ok"},
		{name: "empty_step", step: "", status: "ok"},
		{name: "empty_status", step: "classify", status: ""},
		{name: "both_empty", step: "", status: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
			if step != tc.step || status != tc.status {
				t.Fatalf("round trip = (%q,%q), want (%q,%q)", step, status, tc.step, tc.status)
			}
		})
	}
}

func TestFlush_EmptySubmitsNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("empty flush submitted %d payloads", sub.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFlush_BuildsExpectedSeries(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("ingest_batches_total", 1, nil)
	b.IncCounter("ingest_rows_total", 118, metrics.Labels{"kind": "usarec_market_share"})
	b.IncCounter("ingest_step_total", 1, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram("ingest_step_duration_seconds", 0.5, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram("ingest_step_duration_seconds", 1.5, metrics.Labels{"step": "load", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	payload, ok := sub.last()
	if !ok {
		t.Fatal("no payload submitted")
	}

	names := make([]string, 0, len(payload.Series))
	for _, s := range payload.Series {
		names = append(names, s.Metric)
	}
	sort.Strings(names)

	for _, want := range []string{
		"ingest.batches.total",
		"ingest.rows.total",
		"ingest.step.total",
		"ingest.step.duration_seconds.p50",
		"ingest.step.duration_seconds.max",
		"ingest.step.duration_seconds.samples",
	} {
		if !containsString(names, want) {
			t.Errorf("missing series %s; got %v", want, names)
		}
	}

	for _, s := range payload.Series {
		if s.Metric == "ingest.rows.total" {
			if !containsString(s.Tags, "kind:usarec_market_share") {
				t.Errorf("rows series tags = %v", s.Tags)
			}
			if v := *s.Points[0].Value; v != 118 {
				t.Errorf("rows value = %v", v)
			}
		}
		if s.Metric == "ingest.step.duration_seconds.max" {
			if v := *s.Points[0].Value; v != 1.5 {
				t.Errorf("duration max = %v", v)
			}
		}
		if ts := *s.Points[0].Timestamp; ts != 1700000000 {
			t.Errorf("series %s timestamp = %d", s.Metric, ts)
		}
	}

	// Buffers reset after flush.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("flush after reset submitted again: %d payloads", sub.count())
	}
	_ = b.Close()
}

func TestFlush_ResetsEvenOnSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, sub)

	b.IncCounter("ingest_batches_total", 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatal("Flush did not surface submit error")
	}
	sub.err = nil
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush after error: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("buffers not reset on failed flush: %d payloads", sub.count())
	}
	_ = b.Close()
}

func TestIncCounter_IgnoresUnknownAndNonPositive(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("ingest_batches_total", 0, nil)
	b.IncCounter("ingest_batches_total", -3, nil)
	b.IncCounter("some_other_metric", 5, nil)
	b.IncCounter("ingest_rows_total", 5, nil) // no kind label

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("ignored observations produced a payload")
	}
	_ = b.Close()
}

func TestClose_FinalFlush(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("ingest_batches_total", 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("Close did not flush: %d payloads", sub.count())
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0, want: 1},
		{p: 0.5, want: 6},
		{p: 0.9, want: 9},
		{p: 1, want: 10},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Errorf("percentile %v = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Errorf("empty percentile = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "env:prod", want: []string{"env:prod"}},
		{in: " env:prod , service:ingest ,", want: []string{"env:prod", "service:ingest"}},
	}
	for _, tc := range tests {
		got := ParseTagsCSV(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ParseTagsCSV(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseTagsCSV(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func containsString(s []string, want string) bool {
	for _, v := range s {
		if strings.Contains(v, want) || v == want {
			return true
		}
	}
	return false
}
