package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/blob"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/extract"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

var testRules = Rules{CSVPrefix: "mba/csv/", PDFPrefix: "mba/pdf/"}

// fakeDownloader serves a canned body for any key.
type fakeDownloader struct {
	body []byte
	err  error
}

func (f *fakeDownloader) Download(_ context.Context, bucket, key string) (*blob.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &blob.Object{Bucket: bucket, Key: key, Body: f.body, Hash: "abc123"}, nil
}

// fakeCSV records ingested keys and returns a scripted result or error.
type fakeCSV struct {
	keys  []string
	res   *loader.Result
	err   error
	panic bool
}

func (f *fakeCSV) IngestFile(_ context.Context, sourceFile string, _ []byte) (*loader.Result, error) {
	if f.panic {
		panic("nil schema manager")
	}
	f.keys = append(f.keys, sourceFile)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

// fakeDoc records processed keys.
type fakeDoc struct {
	keys []string
	err  error
}

func (f *fakeDoc) Process(_ context.Context, _, key string, _ extract.JobType) (*extract.Manifest, string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, "", f.err
	}
	return &extract.Manifest{JobID: "j", SourceKey: key, Status: "SUCCEEDED"}, "out/", nil
}

// fakeAudit records which pipelines wrote audit entries.
type fakeAudit struct {
	csvRuns []string
	docRuns []string
}

func (f *fakeAudit) WriteCSV(_ context.Context, res *loader.Result, _ string) error {
	f.csvRuns = append(f.csvRuns, res.SourceFile)
	return nil
}

func (f *fakeAudit) WriteDoc(_ context.Context, _ string, m *extract.Manifest, _ string, _ time.Duration) error {
	f.docRuns = append(f.docRuns, m.SourceKey)
	return nil
}

func okResult(source string) *loader.Result {
	return &loader.Result{
		RunID:         "run-1",
		TableName:     "t",
		SourceFile:    source,
		RowsAttempted: 3,
		RowsLoaded:    3,
		Success:       true,
	}
}

func s3Record(key string) events.S3EventRecord {
	rec := events.S3EventRecord{}
	rec.S3.Bucket.Name = "bkt"
	rec.S3.Object.Key = key
	return rec
}

// TestDeterminePipeline covers the prefix + case-insensitive suffix rules.
func TestDeterminePipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want Pipeline
	}{
		{"mba/csv/x.csv", PipelineCSV},
		{"mba/csv/x.CSV", PipelineCSV},
		{"mba/pdf/claim.pdf", PipelinePDF},
		{"mba/pdf/claim.PDF", PipelinePDF},
		{"mba/other/y.pdf", PipelineSkip},
		{"mba/csv/readme.txt", PipelineSkip},
		{"mba/pdf/x.csv", PipelineSkip},
		{"", PipelineSkip},
	}
	for _, tt := range tests {
		if got := testRules.DeterminePipeline(tt.key); got != tt.want {
			t.Errorf("DeterminePipeline(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

// TestRouteEventCSV verifies the tabular path: download, ingest, audit,
// URL-decoded key throughout.
func TestRouteEventCSV(t *testing.T) {
	t.Parallel()

	const key = "mba/csv/monthly+report.csv" // S3 encodes spaces as +
	csv := &fakeCSV{res: okResult("mba/csv/monthly report.csv")}
	auditor := &fakeAudit{}
	h := NewHandler(testRules, &fakeDownloader{body: []byte("id\n1\n")}, csv, &fakeDoc{}, auditor, extract.JobTypeText, 0, nil)

	out := h.RouteEvent(context.Background(), s3Record(key))
	if !out.Success || out.Pipeline != PipelineCSV {
		t.Fatalf("outcome = %+v, want csv success", out)
	}
	if out.Key != "mba/csv/monthly report.csv" {
		t.Errorf("key = %q, want URL-decoded", out.Key)
	}
	if len(csv.keys) != 1 || csv.keys[0] != "mba/csv/monthly report.csv" {
		t.Errorf("ingested keys = %v", csv.keys)
	}
	if len(auditor.csvRuns) != 1 {
		t.Errorf("audit runs = %v, want one csv record", auditor.csvRuns)
	}
}

// TestRouteEventPDF verifies the document path dispatch.
func TestRouteEventPDF(t *testing.T) {
	t.Parallel()

	doc := &fakeDoc{}
	auditor := &fakeAudit{}
	h := NewHandler(testRules, &fakeDownloader{}, &fakeCSV{}, doc, auditor, extract.JobTypeText, 0, nil)

	out := h.RouteEvent(context.Background(), s3Record("mba/pdf/claim.pdf"))
	if !out.Success || out.Pipeline != PipelinePDF {
		t.Fatalf("outcome = %+v, want pdf success", out)
	}
	if len(doc.keys) != 1 || len(auditor.docRuns) != 1 {
		t.Errorf("doc keys = %v, audit runs = %v", doc.keys, auditor.docRuns)
	}
}

// TestRouteEventSkip verifies unmatched keys are skipped successfully
// without touching either pipeline.
func TestRouteEventSkip(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{}
	doc := &fakeDoc{}
	h := NewHandler(testRules, &fakeDownloader{}, csv, doc, nil, extract.JobTypeText, 0, nil)

	out := h.RouteEvent(context.Background(), s3Record("mba/other/y.pdf"))
	if !out.Success || out.Pipeline != PipelineSkip {
		t.Fatalf("outcome = %+v, want skip success", out)
	}
	if len(csv.keys) != 0 || len(doc.keys) != 0 {
		t.Error("skipped key must not reach a pipeline")
	}
}

// TestRouteEventErrorTypes verifies failures convert into structured
// outcomes with the right error_type, never escaping the router.
func TestRouteEventErrorTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		csvErr   error
		wantType string
	}{
		{
			name:     "inference failure",
			csvErr:   &schema.InferenceError{Source: "x.csv", Reason: "file is empty"},
			wantType: "schema_inference",
		},
		{
			name:     "ingestion failure",
			csvErr:   &loader.IngestionError{File: "x.csv", Stage: "load", Err: errors.New("boom")},
			wantType: "data_ingestion",
		},
		{
			name:     "unknown failure",
			csvErr:   errors.New("boom"),
			wantType: "internal",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			csv := &fakeCSV{err: tt.csvErr}
			h := NewHandler(testRules, &fakeDownloader{}, csv, &fakeDoc{}, nil, extract.JobTypeText, 0, nil)

			out := h.RouteEvent(context.Background(), s3Record("mba/csv/x.csv"))
			if out.Success {
				t.Fatal("outcome should be a failure")
			}
			if out.ErrorType != tt.wantType {
				t.Errorf("error_type = %q, want %q", out.ErrorType, tt.wantType)
			}
		})
	}
}

// TestRouteEventTimeoutType verifies the extraction timeout is classified
// ahead of the generic extraction error.
func TestRouteEventTimeoutType(t *testing.T) {
	t.Parallel()

	doc := &fakeDoc{err: &extract.TimeoutError{JobID: "j", Budget: time.Minute}}
	h := NewHandler(testRules, &fakeDownloader{}, &fakeCSV{}, doc, nil, extract.JobTypeText, 0, nil)

	out := h.RouteEvent(context.Background(), s3Record("mba/pdf/claim.pdf"))
	if out.ErrorType != "extraction_timeout" {
		t.Errorf("error_type = %q, want extraction_timeout", out.ErrorType)
	}
}

// TestRouteEventRecoversPanic verifies a panic in downstream code becomes a
// failed outcome instead of crashing the invocation.
func TestRouteEventRecoversPanic(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{panic: true}
	h := NewHandler(testRules, &fakeDownloader{}, csv, &fakeDoc{}, nil, extract.JobTypeText, 0, nil)

	out := h.RouteEvent(context.Background(), s3Record("mba/csv/x.csv"))
	if out.Success {
		t.Fatal("panicked record must fail")
	}
	if out.ErrorType != "panic" {
		t.Errorf("error_type = %q, want panic", out.ErrorType)
	}
}

// TestHandleSummary verifies batch counting and the multi-status flag.
func TestHandleSummary(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{err: errors.New("db down")}
	doc := &fakeDoc{}
	h := NewHandler(testRules, &fakeDownloader{}, csv, doc, nil, extract.JobTypeText, 0, nil)

	event := events.S3Event{Records: []events.S3EventRecord{
		s3Record("mba/csv/x.csv"),       // fails
		s3Record("mba/pdf/claim.pdf"),   // succeeds
		s3Record("mba/other/notes.txt"), // skipped
	}}
	summary, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if summary.Total != 3 || summary.Successful != 1 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %+v, want 3/1/1/1", summary)
	}
	if !summary.MultiStatus {
		t.Error("mixed batch should set MultiStatus")
	}
}

// TestHandleAllFailedMultiStatus verifies the multi-status flag is set
// whenever any record failed, including a batch where every record failed.
func TestHandleAllFailedMultiStatus(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{err: errors.New("db down")}
	h := NewHandler(testRules, &fakeDownloader{}, csv, &fakeDoc{}, nil, extract.JobTypeText, 0, nil)

	event := events.S3Event{Records: []events.S3EventRecord{
		s3Record("mba/csv/x.csv"),
		s3Record("mba/csv/y.csv"),
	}}
	summary, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if summary.Failed != 2 {
		t.Fatalf("summary = %+v, want both records failed", summary)
	}
	if !summary.MultiStatus {
		t.Error("fully failed batch should set MultiStatus")
	}
}

// TestHandleBudgetDeferral verifies records are deferred instead of
// force-processed when the remaining execution time runs low.
func TestHandleBudgetDeferral(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{res: okResult("x")}
	h := NewHandler(testRules, &fakeDownloader{body: []byte("id\n1\n")}, csv, &fakeDoc{}, nil, extract.JobTypeText, time.Minute, nil)

	// Deadline closer than the one-minute budget: nothing may start.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event := events.S3Event{Records: []events.S3EventRecord{
		s3Record("mba/csv/a.csv"),
		s3Record("mba/csv/b.csv"),
	}}
	summary, err := h.Handle(ctx, event)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if summary.Deferred != 2 || summary.Successful != 0 {
		t.Errorf("summary = %+v, want both records deferred", summary)
	}
	if len(csv.keys) != 0 {
		t.Errorf("ingested = %v, want none", csv.keys)
	}
}

// TestHandleNoDeadline verifies contexts without a deadline always pass the
// budget check (local runs).
func TestHandleNoDeadline(t *testing.T) {
	t.Parallel()

	csv := &fakeCSV{res: okResult("x")}
	h := NewHandler(testRules, &fakeDownloader{body: []byte("id\n1\n")}, csv, &fakeDoc{}, nil, extract.JobTypeText, time.Minute, nil)

	summary, err := h.Handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("mba/csv/a.csv"),
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if summary.Successful != 1 || summary.Deferred != 0 {
		t.Errorf("summary = %+v, want one success", summary)
	}
}
