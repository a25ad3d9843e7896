package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"varpivot/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	s := m.GetSummary()
	return s.GetSampleCount(), s.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend("run1", ""); err == nil {
		t.Fatal("empty gateway URL must be rejected")
	}
	b, err := NewBackend("", "http://localhost:9091")
	if err != nil {
		t.Fatal(err)
	}
	if b.jobName != "varpivot" {
		t.Fatalf("default job name = %q", b.jobName)
	}
}

func TestIncCounterRouting(t *testing.T) {
	b, err := NewBackend("run1", "http://localhost:9091")
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter("varpivot_stage_total", 1, metrics.Labels{"stage": "pivot", "status": "success"})
	b.IncCounter("varpivot_stage_total", 1, metrics.Labels{"stage": "pivot", "status": "success"})
	b.IncCounter("varpivot_rows_total", 42, metrics.Labels{"kind": "merged"})
	b.IncCounter("varpivot_files_total", 3, nil)
	b.IncCounter("unknown_metric", 99, nil)

	if got := readCounterValue(t, b.stageCounter.WithLabelValues("pivot", "success")); got != 2 {
		t.Errorf("stage counter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("merged")); got != 42 {
		t.Errorf("row counter = %v, want 42", got)
	}
	if got := readCounterValue(t, b.fileCounter); got != 3 {
		t.Errorf("file counter = %v, want 3", got)
	}
}

func TestObserveHistogram(t *testing.T) {
	b, err := NewBackend("run1", "http://localhost:9091")
	if err != nil {
		t.Fatal(err)
	}
	b.ObserveHistogram("varpivot_stage_duration_seconds", 1.5, metrics.Labels{"stage": "merge", "status": "success"})
	b.ObserveHistogram("varpivot_stage_duration_seconds", 0.5, metrics.Labels{"stage": "merge", "status": "success"})
	b.ObserveHistogram("some_other_metric", 10, nil)

	count, sum := readSummaryCountSum(t, b.stageDuration, "merge", "success")
	if count != 2 || sum != 2.0 {
		t.Fatalf("summary count/sum = %d/%v, want 2/2.0", count, sum)
	}
}

func TestFlushPushesToGateway(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("run1", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter("varpivot_files_total", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if gotPath != "/metrics/job/run1" {
		t.Fatalf("push path = %q", gotPath)
	}
}
