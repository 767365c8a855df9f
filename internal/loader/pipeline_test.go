package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

// fakeStore satisfies Store in memory: every table is absent, DDL succeeds,
// and inserts are recorded per table.
type fakeStore struct {
	execs   []string
	inserts []string // table names, in call order
}

func (f *fakeStore) Exec(_ context.Context, query string, _ ...any) (int64, error) {
	f.execs = append(f.execs, query)
	return 0, nil
}

func (f *fakeStore) TableColumns(_ context.Context, _ string) ([]schema.LiveColumn, error) {
	return nil, nil
}

func (f *fakeStore) BatchInsert(_ context.Context, table string, _ []string, rows [][]any, _ bool) (int64, error) {
	f.inserts = append(f.inserts, table)
	return int64(len(rows)), nil
}

func (f *fakeStore) Truncate(_ context.Context, _ string) error { return nil }

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// TestIngestFile runs the full infer → ensure-schema → load path for one
// in-memory file against the fake store.
func TestIngestFile(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	p := NewPipeline(store, Options{}, nil, nil)

	res, err := p.IngestFile(context.Background(), "members.csv", []byte("id,name\n1,Alice\n2,Bob\n3,Carol\n"))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if !res.Success || res.RowsLoaded != 3 {
		t.Errorf("result = %+v, want 3 loaded rows", res)
	}
	if res.TableName != "members" {
		t.Errorf("TableName = %q, want members", res.TableName)
	}
	if len(store.execs) != 1 {
		t.Errorf("execs = %q, want one CREATE TABLE", store.execs)
	}
}

// TestIngestFileAuditHook verifies the audit hook fires with the result and
// that a failing hook does not fail the ingestion.
func TestIngestFileAuditHook(t *testing.T) {
	t.Parallel()

	var audited *Result
	hook := func(_ context.Context, res *Result) error {
		audited = res
		return errors.New("audit backend down")
	}
	p := NewPipeline(&fakeStore{}, Options{}, hook, nil)

	res, err := p.IngestFile(context.Background(), "members.csv", []byte("id,name\n1,a\n"))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if audited == nil || audited.RunID != res.RunID {
		t.Errorf("audit hook saw %+v, want the returned result", audited)
	}
}

// TestIngestDirectoryContinueOnError verifies the tolerant mode: a bad file
// is recorded and the remaining files are still ingested, in name order.
func TestIngestDirectoryContinueOnError(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"c_last.csv":  "id\n3\n",
		"a_first.csv": "id\n1\n",
		"b_bad.csv":   "",
	})
	store := &fakeStore{}
	p := NewPipeline(store, Options{}, nil, nil)

	summary, err := p.IngestDirectory(context.Background(), dir, "*.csv", true)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if summary.Total != 3 || summary.Successful != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want total 3, successful 2, failed 1", summary)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].File != "b_bad.csv" {
		t.Errorf("Errors = %+v, want one entry for b_bad.csv", summary.Errors)
	}
	if len(store.inserts) != 2 || store.inserts[0] != "a_first" || store.inserts[1] != "c_last" {
		t.Errorf("insert order = %v, want lexicographic [a_first c_last]", store.inserts)
	}
}

// TestIngestDirectoryHaltsOnError verifies the strict mode stops at the
// first failure and returns the partial summary alongside the error.
func TestIngestDirectoryHaltsOnError(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"a.csv": "id\n1\n",
		"b.csv": "",
		"c.csv": "id\n3\n",
	})
	store := &fakeStore{}
	p := NewPipeline(store, Options{}, nil, nil)

	summary, err := p.IngestDirectory(context.Background(), dir, "*.csv", false)
	if err == nil {
		t.Fatal("want error from halted run")
	}
	if summary == nil || summary.Total != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want partial aggregate total 2, successful 1, failed 1", summary)
	}
	if len(store.inserts) != 1 || store.inserts[0] != "a" {
		t.Errorf("inserts = %v, want only [a]", store.inserts)
	}
}

// TestIngestDirectoryNoMatches verifies an empty match set is a clean,
// empty summary rather than an error.
func TestIngestDirectoryNoMatches(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&fakeStore{}, Options{}, nil, nil)
	summary, err := p.IngestDirectory(context.Background(), t.TempDir(), "*.csv", true)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if summary.Total != 0 || len(summary.Results) != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}
