// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// The pipeline runs as short-lived invocations, so metrics are pushed to a
// Pushgateway on Flush instead of being exposed on a scrape endpoint. All
// Prometheus-specific dependencies are contained here so the rest of the
// project can swap backends without changes to the core pipeline.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // ingest_step_total
	stepDuration *prometheus.SummaryVec // ingest_step_duration_seconds

	rowCounter   *prometheus.CounterVec // ingest_rows_total
	chunkCounter *prometheus.CounterVec // ingest_chunks_total
	pollCounter  *prometheus.CounterVec // extract_polls_total
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Pushgateway backend. jobName is the Pushgateway
// "job" grouping key; gatewayURL the base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "mba_ingest"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_step_total",
			Help: "Total pipeline step executions, partitioned by pipeline, step, and status.",
		},
		[]string{"pipeline", "step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "ingest_step_duration_seconds",
			Help: "Pipeline step duration in seconds.",
		},
		[]string{"pipeline", "step", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Rows processed, partitioned by table and kind.",
		},
		[]string{"table", "kind"},
	)
	chunkCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_chunks_total",
			Help: "Insert chunks flushed, partitioned by table.",
		},
		[]string{"table"},
	)
	pollCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_polls_total",
			Help: "Extraction status polls, partitioned by job type.",
		},
		[]string{"job_type"},
	)

	for _, c := range []prometheus.Collector{stepCounter, stepDuration, rowCounter, chunkCounter, pollCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
		rowCounter:   rowCounter,
		chunkCounter: chunkCounter,
		pollCounter:  pollCounter,
	}, nil
}

// IncCounter routes known counter names onto their collectors; unknown
// names are dropped silently so callers stay decoupled from this backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "ingest_step_total":
		b.stepCounter.With(prometheus.Labels{
			"pipeline": labels["pipeline"],
			"step":     labels["step"],
			"status":   labels["status"],
		}).Add(delta)
	case "ingest_rows_total":
		b.rowCounter.With(prometheus.Labels{
			"table": labels["table"],
			"kind":  labels["kind"],
		}).Add(delta)
	case "ingest_chunks_total":
		b.chunkCounter.With(prometheus.Labels{
			"table": labels["table"],
		}).Add(delta)
	case "extract_polls_total":
		b.pollCounter.With(prometheus.Labels{
			"job_type": labels["job_type"],
		}).Add(delta)
	}
}

// ObserveHistogram records step durations; other names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "ingest_step_duration_seconds" {
		return
	}
	b.stepDuration.With(prometheus.Labels{
		"pipeline": labels["pipeline"],
		"step":     labels["step"],
		"status":   labels["status"],
	}).Observe(value)
}

// Flush pushes the accumulated metrics to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push()
}
