// Package router inspects inbound S3 object-created notifications and
// dispatches each record to the tabular or document pipeline, enforcing a
// remaining-execution-time budget across the batch.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/blob"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/db"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/extract"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

// Pipeline names the processing path chosen for one object key.
type Pipeline string

const (
	PipelineSkip Pipeline = "skip"
	PipelineCSV  Pipeline = "csv"
	PipelinePDF  Pipeline = "pdf"
)

// Rules hold the configured key-prefix routing table.
type Rules struct {
	CSVPrefix string
	PDFPrefix string
}

// DeterminePipeline matches key against the prefix rules with a
// case-insensitive extension check. Keys matching neither rule are skipped,
// never errored.
func (r Rules) DeterminePipeline(key string) Pipeline {
	lower := strings.ToLower(key)
	switch {
	case strings.HasPrefix(key, r.CSVPrefix) && strings.HasSuffix(lower, ".csv"):
		return PipelineCSV
	case strings.HasPrefix(key, r.PDFPrefix) && strings.HasSuffix(lower, ".pdf"):
		return PipelinePDF
	default:
		return PipelineSkip
	}
}

// Outcome is the structured per-record result. RouteEvent always produces
// one, even when the record's processing panicked.
type Outcome struct {
	Bucket    string   `json:"bucket"`
	Key       string   `json:"key"`
	Pipeline  Pipeline `json:"pipeline"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
	ErrorType string   `json:"error_type,omitempty"`
}

// Summary aggregates one invocation. MultiStatus is set when any record in
// the batch failed.
type Summary struct {
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	// Deferred counts records left unprocessed because the remaining
	// execution-time budget ran out; they redeliver on retry.
	Deferred    int       `json:"deferred"`
	MultiStatus bool      `json:"multi_status"`
	Outcomes    []Outcome `json:"outcomes"`
}

// CSVIngestor runs the tabular pipeline for one in-memory file.
type CSVIngestor interface {
	IngestFile(ctx context.Context, sourceFile string, data []byte) (*loader.Result, error)
}

// DocProcessor runs the document pipeline for one stored object.
type DocProcessor interface {
	Process(ctx context.Context, bucket, key string, jobType extract.JobType) (*extract.Manifest, string, error)
}

// Downloader fetches inbound objects. *blob.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) (*blob.Object, error)
}

// AuditSink records run outcomes. *audit.Writer satisfies it; nil disables
// auditing.
type AuditSink interface {
	WriteCSV(ctx context.Context, res *loader.Result, contentHash string) error
	WriteDoc(ctx context.Context, outputFolder string, m *extract.Manifest, contentHash string, d time.Duration) error
}

// Handler processes S3 event batches.
type Handler struct {
	rules  Rules
	store  Downloader
	csv    CSVIngestor
	doc    DocProcessor
	audit  AuditSink
	// jobType selects text detection vs. analysis for the document path.
	jobType      extract.JobType
	minRemaining time.Duration
	logger       *slog.Logger
}

// NewHandler wires a Handler. audit may be nil.
func NewHandler(rules Rules, store Downloader, csv CSVIngestor, doc DocProcessor, audit AuditSink, jobType extract.JobType, minRemaining time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobType == "" {
		jobType = extract.JobTypeAnalysis
	}
	return &Handler{
		rules:        rules,
		store:        store,
		csv:          csv,
		doc:          doc,
		audit:        audit,
		jobType:      jobType,
		minRemaining: minRemaining,
		logger:       logger,
	}
}

// Handle iterates the batch, checking the remaining execution-time budget
// before every record. When the budget runs low, unprocessed records are
// deferred instead of force-processed; the partial summary reports them.
func (h *Handler) Handle(ctx context.Context, event events.S3Event) (*Summary, error) {
	summary := &Summary{Total: len(event.Records)}

	for i, rec := range event.Records {
		if !h.budgetOK(ctx) {
			summary.Deferred = len(event.Records) - i
			h.logger.Warn("execution budget low; deferring remaining records",
				"deferred", summary.Deferred)
			break
		}

		out := h.RouteEvent(ctx, rec)
		summary.Outcomes = append(summary.Outcomes, out)
		switch {
		case out.Pipeline == PipelineSkip:
			summary.Skipped++
		case out.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
	}

	summary.MultiStatus = summary.Failed > 0
	if err := metrics.Flush(); err != nil {
		h.logger.Warn("metrics flush failed", "error", err)
	}

	h.logger.Info("event batch processed",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"deferred", summary.Deferred)
	return summary, nil
}

// RouteEvent processes one record and always returns a structured Outcome:
// failures, including panics in downstream code, are converted into the
// outcome rather than escaping to the caller.
func (h *Handler) RouteEvent(ctx context.Context, rec events.S3EventRecord) (out Outcome) {
	bucket := rec.S3.Bucket.Name
	key := decodeKey(rec.S3.Object.Key)
	out = Outcome{Bucket: bucket, Key: key, Pipeline: h.rules.DeterminePipeline(key)}

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Error = fmt.Sprintf("panic: %v", r)
			out.ErrorType = "panic"
			h.logger.Error("record processing panicked", "key", key, "panic", r)
		}
	}()

	start := time.Now()
	var err error
	switch out.Pipeline {
	case PipelineCSV:
		err = h.processCSV(ctx, bucket, key)
	case PipelinePDF:
		err = h.processDoc(ctx, bucket, key)
	case PipelineSkip:
		h.logger.Debug("key matched no routing rule; skipped", "key", key)
		out.Success = true
		return out
	}
	metrics.RecordStep(string(out.Pipeline), "route", err, time.Since(start))

	if err != nil {
		out.Error = err.Error()
		out.ErrorType = errorType(err)
		h.logger.Error("record processing failed",
			"key", key,
			"pipeline", out.Pipeline,
			"error_type", out.ErrorType,
			"error", err)
		return out
	}
	out.Success = true
	return out
}

func (h *Handler) processCSV(ctx context.Context, bucket, key string) error {
	obj, err := h.store.Download(ctx, bucket, key)
	if err != nil {
		return err
	}
	res, err := h.csv.IngestFile(ctx, key, obj.Body)
	if err != nil {
		return err
	}
	if h.audit != nil {
		if aerr := h.audit.WriteCSV(ctx, res, obj.Hash); aerr != nil {
			h.logger.Warn("audit write failed", "key", key, "error", aerr)
		}
	}
	if !res.Success {
		return &loader.IngestionError{
			File:  key,
			Stage: "load",
			Err:   fmt.Errorf("%d of %d rows failed", res.RowsFailed, res.RowsAttempted),
		}
	}
	return nil
}

func (h *Handler) processDoc(ctx context.Context, bucket, key string) error {
	start := time.Now()
	manifest, folder, err := h.doc.Process(ctx, bucket, key, h.jobType)
	if err != nil {
		return err
	}
	if h.audit != nil {
		if aerr := h.audit.WriteDoc(ctx, folder, manifest, "", time.Since(start)); aerr != nil {
			h.logger.Warn("audit write failed", "key", key, "error", aerr)
		}
	}
	return nil
}

// budgetOK reports whether enough execution time remains to start another
// record. Contexts without a deadline (local runs) always pass.
func (h *Handler) budgetOK(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= h.minRemaining
}

// decodeKey undoes the URL encoding S3 applies to object keys in event
// notifications. Undecodable keys are used raw.
func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

func errorType(err error) string {
	var (
		infErr  *schema.InferenceError
		ingErr  *loader.IngestionError
		opErr   *db.OpError
		extErr  *extract.Error
		timeErr *extract.TimeoutError
	)
	switch {
	case errors.As(err, &timeErr):
		return "extraction_timeout"
	case errors.As(err, &extErr):
		return "extraction"
	case errors.As(err, &infErr):
		return "schema_inference"
	case errors.As(err, &opErr):
		return "database"
	case errors.As(err, &ingErr):
		return "data_ingestion"
	default:
		return "internal"
	}
}
