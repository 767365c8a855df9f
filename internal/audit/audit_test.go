package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/extract"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
)

// fakeStore captures the last uploaded record.
type fakeStore struct {
	bucket string
	key    string
	value  any
}

func (f *fakeStore) UploadJSON(_ context.Context, bucket, key string, v any) error {
	f.bucket, f.key, f.value = bucket, key, v
	return nil
}

func fixedWriter(store Store) *Writer {
	w := NewWriter(store, "bkt", "mba/audit/", nil)
	w.now = func() time.Time { return time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC) }
	return w
}

// TestWriteCSVKeyLayout verifies the date-partitioned key and the record
// contents for a tabular run.
func TestWriteCSVKeyLayout(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	w := fixedWriter(store)

	res := &loader.Result{
		RunID:         "run-1",
		TableName:     "members",
		SourceFile:    "mba/csv/members.csv",
		RowsAttempted: 3,
		RowsLoaded:    2,
		RowsFailed:    1,
		Duration:      1500 * time.Millisecond,
		Errors:        []loader.ChunkError{{Chunk: 2, Rows: 1, Message: "duplicate key"}},
	}
	if err := w.WriteCSV(context.Background(), res, "deadbeef"); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	if store.bucket != "bkt" {
		t.Errorf("bucket = %q", store.bucket)
	}
	want := "mba/audit/csv/2026-08-23/members.csv.json"
	if store.key != want {
		t.Errorf("key = %q, want %q", store.key, want)
	}

	rec, ok := store.value.(Record)
	if !ok {
		t.Fatalf("value = %T, want Record", store.value)
	}
	if rec.Pipeline != "csv" || rec.Status != "failure" || rec.RunID != "run-1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.ContentHash != "deadbeef" || rec.DurationMS != 1500 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Rows == nil || rec.Rows.Loaded != 2 || rec.Rows.Failed != 1 {
		t.Errorf("rows = %+v", rec.Rows)
	}
	if len(rec.Errors) != 1 {
		t.Errorf("errors = %v, want one bounded entry", rec.Errors)
	}
}

// TestWriteCSVErrorsBounded verifies the record carries at most maxErrors
// entries.
func TestWriteCSVErrorsBounded(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	w := fixedWriter(store)

	res := &loader.Result{SourceFile: "big.csv", Success: false}
	for i := 0; i < maxErrors+20; i++ {
		res.Errors = append(res.Errors, loader.ChunkError{Chunk: i + 1, Rows: 1, Message: "boom"})
	}
	if err := w.WriteCSV(context.Background(), res, ""); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rec := store.value.(Record)
	if len(rec.Errors) != maxErrors {
		t.Errorf("len(Errors) = %d, want %d", len(rec.Errors), maxErrors)
	}
}

// TestWriteDocNextToManifest verifies the document record lands in the
// job's output folder with a status derived from the manifest.
func TestWriteDocNextToManifest(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	w := fixedWriter(store)

	m := &extract.Manifest{
		JobID:     "job-9",
		SourceKey: "mba/pdf/claim.pdf",
		PageCount: 4,
		Status:    "SUCCEEDED",
	}
	folder := "mba/textract/mba/pdf/claim.pdf/job-9/"
	if err := w.WriteDoc(context.Background(), folder, m, "cafe", 2*time.Second); err != nil {
		t.Fatalf("WriteDoc: %v", err)
	}

	if store.key != folder+"audit.json" {
		t.Errorf("key = %q, want %q", store.key, folder+"audit.json")
	}
	rec := store.value.(Record)
	if rec.Pipeline != "pdf" || rec.Status != "success" || rec.JobID != "job-9" || rec.PageCount != 4 {
		t.Errorf("record = %+v", rec)
	}
}

// TestWriteDocFailedStatus verifies FAILED manifests record a failure.
func TestWriteDocFailedStatus(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	w := fixedWriter(store)

	m := &extract.Manifest{JobID: "j", SourceKey: "k.pdf", Status: "FAILED"}
	if err := w.WriteDoc(context.Background(), "out/", m, "", 0); err != nil {
		t.Fatalf("WriteDoc: %v", err)
	}
	if rec := store.value.(Record); rec.Status != "failure" {
		t.Errorf("status = %q, want failure", rec.Status)
	}
}
