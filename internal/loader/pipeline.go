package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

// Store combines the schema-management and batch-insert surfaces the
// pipeline needs from the database client.
type Store interface {
	schema.Conn
	Inserter
}

// Options tune one Pipeline instance. Zero values fall back to the package
// defaults used by Infer and Load.
type Options struct {
	SampleRows       int
	MaxVarchar       int
	ChunkSize        int
	Truncate         bool
	IgnoreDuplicates bool
}

// AuditFunc is invoked with the completed result of every file, successful
// or not. Audit failures are logged, never fatal.
type AuditFunc func(ctx context.Context, res *Result) error

// Pipeline runs the full per-file ingestion: infer the schema from a
// sample, reconcile it against the live table, then chunk-load the rows.
type Pipeline struct {
	store  Store
	mgr    *schema.Manager
	loader *Loader
	opts   Options
	audit  AuditFunc
	logger *slog.Logger
}

// NewPipeline wires a Pipeline over store. audit may be nil.
func NewPipeline(store Store, opts Options, audit AuditFunc, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  store,
		mgr:    schema.NewManager(store, logger),
		loader: NewLoader(store, logger),
		opts:   opts,
		audit:  audit,
		logger: logger,
	}
}

// IngestFile runs infer, ensure-schema, and load for one in-memory file.
// sourceFile is the file name or object key the data arrived under; it names
// the target table and is stamped into every row.
//
// The returned Result is non-nil whenever the load phase ran, even when some
// chunks failed. A non-nil error means the pipeline stopped before or during
// a phase and the file must be treated as not ingested.
func (p *Pipeline) IngestFile(ctx context.Context, sourceFile string, data []byte) (*Result, error) {
	stepStart := time.Now()
	inferred, err := schema.Infer(bytes.NewReader(data), schema.InferOptions{
		SourceFile:         sourceFile,
		SampleRows:         p.opts.SampleRows,
		MaxVarchar:         p.opts.MaxVarchar,
		AddMetadataColumns: true,
	})
	metrics.RecordStep("csv", "infer", err, time.Since(stepStart))
	if err != nil {
		return nil, err
	}

	stepStart = time.Now()
	_, err = p.mgr.EnsureSchema(ctx, inferred)
	metrics.RecordStep("csv", "ensure_schema", err, time.Since(stepStart))
	if err != nil {
		return nil, &IngestionError{File: sourceFile, Stage: "ensure schema", Err: err}
	}

	stepStart = time.Now()
	res, err := p.loader.Load(ctx, bytes.NewReader(data), Spec{
		Schema:           inferred,
		ChunkSize:        p.opts.ChunkSize,
		Truncate:         p.opts.Truncate,
		IgnoreDuplicates: p.opts.IgnoreDuplicates,
	})
	metrics.RecordStep("csv", "load", err, time.Since(stepStart))
	if err != nil {
		return nil, err
	}

	if p.audit != nil {
		if aerr := p.audit(ctx, res); aerr != nil {
			p.logger.Warn("audit write failed", "source_file", sourceFile, "error", aerr)
		}
	}
	return res, nil
}

// FileError pairs a failed file with the error that stopped it.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// DirSummary aggregates a directory run.
type DirSummary struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []*Result   `json:"results"`
	Errors     []FileError `json:"errors,omitempty"`
}

// IngestDirectory ingests every file in dir matching pattern (a filepath
// glob, e.g. "*.csv"), in lexicographic name order. With continueOnError a
// failed file is recorded and the run moves on; without it the run halts on
// the first failure, returning the partial summary alongside the error.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, pattern string, continueOnError bool) (*DirSummary, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("ingest directory %s: bad pattern %q: %w", dir, pattern, err)
	}
	sort.Strings(matches)

	summary := &DirSummary{}
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Total++
		name := filepath.Base(path)

		res, err := p.ingestPath(ctx, path, name)
		if res != nil {
			summary.Results = append(summary.Results, res)
		}
		if err == nil && res != nil && res.Success {
			summary.Successful++
			continue
		}

		summary.Failed++
		if err != nil {
			summary.Errors = append(summary.Errors, FileError{File: name, Error: err.Error()})
			p.logger.Error("file ingestion failed", "file", name, "error", err)
			if !continueOnError {
				return summary, err
			}
		}
	}

	p.logger.Info("directory run finished",
		"dir", dir,
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed)
	return summary, nil
}

func (p *Pipeline) ingestPath(ctx context.Context, path, name string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IngestionError{File: name, Stage: "read file", Err: err}
	}
	return p.IngestFile(ctx, name, data)
}
