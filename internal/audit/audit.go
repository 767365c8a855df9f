// Package audit serializes a JSON record next to the output of every
// pipeline run so each processed object leaves a durable trace: what ran,
// over which source, with what outcome.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/extract"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
)

// maxErrors caps the error detail carried in one record.
const maxErrors = 25

// Store is the persistence surface the writer needs. *blob.Client
// satisfies it.
type Store interface {
	UploadJSON(ctx context.Context, bucket, key string, v any) error
}

// Record is one pipeline-run audit entry.
type Record struct {
	Pipeline    string   `json:"pipeline"`
	Source      string   `json:"source"`
	Status      string   `json:"status"`
	RunID       string   `json:"run_id,omitempty"`
	JobID       string   `json:"job_id,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
	CompletedAt string   `json:"completed_at"`
	DurationMS  int64    `json:"duration_ms"`
	Rows        *Rows    `json:"rows,omitempty"`
	PageCount   int      `json:"page_count,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// Rows carries the tabular counters of a load run.
type Rows struct {
	Attempted int64 `json:"attempted"`
	Loaded    int64 `json:"loaded"`
	Failed    int64 `json:"failed"`
}

// Writer persists audit records to the object store.
type Writer struct {
	store  Store
	bucket string
	prefix string
	logger *slog.Logger

	now func() time.Time
}

// NewWriter returns a Writer storing records in bucket. prefix is the key
// prefix for tabular records (document records live in the job's output
// folder instead).
func NewWriter(store Store, bucket, prefix string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, bucket: bucket, prefix: prefix, logger: logger, now: time.Now}
}

// WriteCSV records one tabular run under
// {prefix}csv/{yyyy-mm-dd}/{source file}.json. contentHash may be empty
// when the file did not arrive through the object store.
func (w *Writer) WriteCSV(ctx context.Context, res *loader.Result, contentHash string) error {
	now := w.now().UTC()
	rec := Record{
		Pipeline:    "csv",
		Source:      res.SourceFile,
		Status:      statusOf(res.Success),
		RunID:       res.RunID,
		ContentHash: contentHash,
		CompletedAt: now.Format(time.RFC3339),
		DurationMS:  res.Duration.Milliseconds(),
		Rows: &Rows{
			Attempted: res.RowsAttempted,
			Loaded:    res.RowsLoaded,
			Failed:    res.RowsFailed,
		},
	}
	for _, e := range res.Errors {
		if len(rec.Errors) >= maxErrors {
			break
		}
		rec.Errors = append(rec.Errors, fmt.Sprintf("chunk %d (%d rows): %s", e.Chunk, e.Rows, e.Message))
	}

	key := path.Join(w.prefix, "csv", now.Format("2006-01-02"), path.Base(res.SourceFile)+".json")
	return w.put(ctx, key, rec)
}

// WriteDoc records one document-extraction run as audit.json inside the
// job's output folder, next to the manifest and pages.
func (w *Writer) WriteDoc(ctx context.Context, outputFolder string, m *extract.Manifest, contentHash string, d time.Duration) error {
	rec := Record{
		Pipeline:    "pdf",
		Source:      m.SourceKey,
		Status:      statusOf(m.Status == "SUCCEEDED" || m.Status == "PARTIAL_SUCCESS"),
		JobID:       m.JobID,
		ContentHash: contentHash,
		CompletedAt: w.now().UTC().Format(time.RFC3339),
		DurationMS:  d.Milliseconds(),
		PageCount:   m.PageCount,
	}
	return w.put(ctx, outputFolder+"audit.json", rec)
}

func (w *Writer) put(ctx context.Context, key string, rec Record) error {
	if err := w.store.UploadJSON(ctx, w.bucket, key, rec); err != nil {
		return fmt.Errorf("audit: write %s: %w", key, err)
	}
	w.logger.Debug("audit record written", "key", key, "pipeline", rec.Pipeline, "status", rec.Status)
	return nil
}

func statusOf(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
