// Package loader streams tabular files into MySQL in bounded chunks,
// isolating per-chunk failures so one bad batch never aborts the run.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

// maxRecordedErrors bounds the error list carried by a Result so audit
// records and responses stay bounded in size.
const maxRecordedErrors = 100

// DefaultChunkSize is the row count per insert chunk when unset.
const DefaultChunkSize = 1000

// Inserter abstracts the batch-insert capability of the database client.
type Inserter interface {
	BatchInsert(ctx context.Context, table string, columns []string, rows [][]any, ignoreDuplicates bool) (int64, error)
	Truncate(ctx context.Context, table string) error
}

// Spec describes one load run.
type Spec struct {
	Schema           schema.TableSchema
	ChunkSize        int
	Truncate         bool
	IgnoreDuplicates bool
}

// ChunkError is one recorded chunk failure.
type ChunkError struct {
	Chunk   int    `json:"chunk"`
	Rows    int    `json:"rows"`
	Message string `json:"message"`
}

// Result summarizes one file ingestion. It is produced once per run and
// never mutated after return. Success is true iff no row failed.
type Result struct {
	RunID         string        `json:"run_id"`
	TableName     string        `json:"table_name"`
	SourceFile    string        `json:"source_file"`
	RowsAttempted int64         `json:"rows_attempted"`
	RowsLoaded    int64         `json:"rows_loaded"`
	RowsFailed    int64         `json:"rows_failed"`
	Errors        []ChunkError  `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
	Success       bool          `json:"success"`
}

// IngestionError wraps an unexpected failure during the load pipeline. It is
// file-scoped: directory and event processing record it and continue.
type IngestionError struct {
	File  string
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Loader maps parsed rows onto parameterized chunk inserts.
type Loader struct {
	ins    Inserter
	logger *slog.Logger
}

// NewLoader returns a Loader writing through ins.
func NewLoader(ins Inserter, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{ins: ins, logger: logger}
}

// Load streams the file in fixed-size row chunks. Each chunk is one
// parameterized batch insert in its own transaction; a chunk-level database
// error is recorded and does not abort the run. Null/empty values map to
// SQL NULL, and the two provenance values (one shared timestamp per run,
// the source file) are appended to every row.
func (l *Loader) Load(ctx context.Context, r io.Reader, spec Spec) (*Result, error) {
	chunkSize := spec.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	res := &Result{
		RunID:      uuid.NewString(),
		TableName:  spec.Schema.TableName,
		SourceFile: spec.Schema.SourceFile,
	}
	start := time.Now()
	ingestedAt := start.UTC().Format("2006-01-02 15:04:05")

	if spec.Truncate {
		if err := l.ins.Truncate(ctx, spec.Schema.TableName); err != nil {
			return nil, &IngestionError{File: spec.Schema.SourceFile, Stage: "truncate", Err: err}
		}
	}

	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, &IngestionError{File: spec.Schema.SourceFile, Stage: "read header", Err: err}
	}

	srcCols := spec.Schema.SourceColumns()
	colIdx, missing := mapColumns(header, srcCols)
	columns := spec.Schema.ColumnNames()

	var (
		chunk   = make([][]any, 0, chunkSize)
		chunkNo int
	)

	flush := func() {
		if len(chunk) == 0 {
			return
		}
		chunkNo++
		n := len(chunk)
		res.RowsAttempted += int64(n)

		// A chunk whose mapped source columns are absent from the file is
		// failed wholesale with a descriptive error; later chunks are still
		// attempted (they fail the same way, keeping the counts honest).
		if len(missing) > 0 {
			res.RowsFailed += int64(n)
			res.recordError(chunkNo, n, fmt.Sprintf("source columns missing from file: %s", strings.Join(missing, ", ")))
			chunk = chunk[:0]
			return
		}

		affected, err := l.ins.BatchInsert(ctx, spec.Schema.TableName, columns, chunk, spec.IgnoreDuplicates)
		res.RowsLoaded += affected
		if err != nil {
			res.RowsFailed += int64(n) - affected
			res.recordError(chunkNo, n, err.Error())
			l.logger.Warn("chunk insert failed",
				"table", spec.Schema.TableName,
				"chunk", chunkNo,
				"rows", n,
				"error", err)
		} else {
			metrics.RecordChunks(spec.Schema.TableName, 1)
		}
		chunk = chunk[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &IngestionError{File: spec.Schema.SourceFile, Stage: "load", Err: err}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed lines are skipped, same best-effort policy as
			// sampling; a failing reader stops the run.
			if isParseError(err) {
				continue
			}
			return nil, &IngestionError{File: spec.Schema.SourceFile, Stage: "read", Err: err}
		}
		if len(rec) == 0 {
			continue
		}

		row := make([]any, 0, len(columns))
		for i := range srcCols {
			idx := colIdx[i]
			var v any
			if idx >= 0 && idx < len(rec) {
				if s := strings.TrimSpace(rec[idx]); s != "" {
					v = s
				}
			}
			row = append(row, v)
		}
		row = append(row, ingestedAt, spec.Schema.SourceFile)

		chunk = append(chunk, row)
		if len(chunk) >= chunkSize {
			flush()
		}
	}
	flush()

	res.Duration = time.Since(start)
	res.Success = res.RowsFailed == 0

	metrics.RecordRows(res.TableName, "attempted", res.RowsAttempted)
	metrics.RecordRows(res.TableName, "loaded", res.RowsLoaded)
	metrics.RecordRows(res.TableName, "failed", res.RowsFailed)

	l.logger.Info("load finished",
		"table", res.TableName,
		"source_file", res.SourceFile,
		"attempted", res.RowsAttempted,
		"loaded", res.RowsLoaded,
		"failed", res.RowsFailed,
		"duration", res.Duration.Truncate(time.Millisecond))
	return res, nil
}

func (r *Result) recordError(chunk, rows int, msg string) {
	if len(r.Errors) >= maxRecordedErrors {
		return
	}
	r.Errors = append(r.Errors, ChunkError{Chunk: chunk, Rows: rows, Message: msg})
}

// readHeader skips malformed/empty lines until a usable header or EOF.
func readHeader(cr *csv.Reader) ([]string, error) {
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, fmt.Errorf("file is empty")
		}
		if err != nil {
			if isParseError(err) {
				continue
			}
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		return rec, nil
	}
}

// isParseError distinguishes malformed CSV lines, which are skippable, from
// failures of the underlying reader, which must stop the read.
func isParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// mapColumns resolves each mapped source column to its index in the file
// header, matching either the original header text or its normalized form.
// Duplicate headers are consumed positionally, so the schema's deduped
// columns (a, a_2, ...) each claim their own file column instead of all
// resolving to the first occurrence. Columns that cannot be resolved are
// reported in missing.
func mapColumns(header []string, srcCols []schema.ColumnDef) (idx []int, missing []string) {
	byOriginal := make(map[string][]int, len(header))
	byNormalized := make(map[string][]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		byOriginal[h] = append(byOriginal[h], i)
		n := schema.NormalizeIdentifier(h)
		byNormalized[n] = append(byNormalized[n], i)
	}

	taken := make([]bool, len(header))
	claim := func(candidates []int) (int, bool) {
		for _, j := range candidates {
			if !taken[j] {
				taken[j] = true
				return j, true
			}
		}
		return 0, false
	}

	idx = make([]int, len(srcCols))
	for i, c := range srcCols {
		if j, ok := claim(byOriginal[c.OriginalName]); ok {
			idx[i] = j
			continue
		}
		if j, ok := claim(byNormalized[c.Name]); ok {
			idx[i] = j
			continue
		}
		idx[i] = -1
		missing = append(missing, c.Name)
	}
	return idx, missing
}
