// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingestion pipeline.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, with a global, pluggable backend that defaults to a no-op
// implementation, so metrics are always safe to call even when no real
// backend is configured. Concrete metric systems live in subpackages.
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
	// Flush pushes or flushes metrics, if the backend needs it.
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

// RecordStep measures latency + success/failure for one pipeline step
// (infer, ensure_schema, load, extract, route).
func RecordStep(pipeline, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"pipeline": pipeline,
		"step":     step,
		"status":   status,
	}
	backend.IncCounter("ingest_step_total", 1, lbls)
	backend.ObserveHistogram("ingest_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given table.
//
// Typical kinds mirror the load result fields:
//   - "attempted"
//   - "loaded"
//   - "failed"
func RecordRows(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_rows_total", float64(delta), Labels{
		"table": table,
		"kind":  kind,
	})
}

// RecordChunks increments the flushed-chunk counter for the given table.
func RecordChunks(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_chunks_total", float64(delta), Labels{
		"table": table,
	})
}

// RecordPoll counts one extraction status poll for the given job type.
func RecordPoll(jobType string) {
	backend.IncCounter("extract_polls_total", 1, Labels{
		"job_type": jobType,
	})
}
