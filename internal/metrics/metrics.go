// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the pipeline stages.
//
// It exposes a narrow Backend interface (counters and timing histograms)
// behind a global, pluggable backend that defaults to a no-op, so calls are
// always safe even when no real metrics system is configured. Concrete
// backends (Prometheus, statsd, ...) stay isolated behind the interface the
// same way the storage backends do.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one pipeline stage run: latency plus a
// success/failure counter. run identifies the pipeline run, stage is one of
// "pivot", "merge", "filter", "persist".
func RecordStage(run, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"run":    run,
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("varpivot_stage_total", 1, lbls)
	backend.ObserveHistogram("varpivot_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for a run. Typical kinds:
//
//   - "loaded"
//   - "filtered_out"
//   - "pivoted"
//   - "quarantined"
//   - "merged"
//   - "cutoff_dropped"
func RecordRows(run, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("varpivot_rows_total", float64(delta), Labels{
		"run":  run,
		"kind": kind,
	})
}

// RecordFiles increments the processed-input counter for a run.
func RecordFiles(run string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("varpivot_files_total", float64(delta), Labels{
		"run": run,
	})
}
