// Package schema infers relational table definitions from sampled CSV data
// and reconciles them against live MySQL tables. Inference is pure and
// deterministic: the same sample always yields the same schema, which makes
// the whole package straightforward to test.
package schema

import (
	"context"
	"fmt"
)

// Provenance column names appended to every inferred schema.
const (
	ColIngestionTimestamp = "ingestion_timestamp"
	ColSourceFile         = "source_file"
)

// ColumnDef describes a single inferred column.
//
// Name is the normalized identifier used in DDL and inserts; OriginalName
// preserves the raw header text for traceability.
type ColumnDef struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	SQLType      string `json:"sql_type"`
	Nullable     bool   `json:"nullable"`
}

// TableSchema is the result of inferring one tabular file. It is created
// once by Infer and never mutated afterwards; the Manager compares it
// against live metadata but does not change it.
type TableSchema struct {
	TableName       string      `json:"table_name"`
	Columns         []ColumnDef `json:"columns"`
	RowCountSampled int         `json:"row_count_sampled"`
	SourceFile      string      `json:"source_file"`
}

// SourceColumns returns the inferred columns minus the provenance pair, in
// order. These are the columns the loader maps from the input file.
func (t TableSchema) SourceColumns() []ColumnDef {
	out := make([]ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == ColIngestionTimestamp || c.Name == ColSourceFile {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ColumnNames returns all column names in declaration order.
func (t TableSchema) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// LiveColumn is one column of an existing table as reported by the database
// catalog (information_schema).
type LiveColumn struct {
	Name     string
	DataType string // lowercased base type, e.g. "varchar", "bigint"
	Nullable bool
}

// Diff is the additive change set required to bring a live table in line
// with an inferred schema. It is derived, never persisted.
type Diff struct {
	NewColumns []ColumnDef
	Compatible bool
}

// Empty reports whether no schema change is required.
func (d Diff) Empty() bool { return len(d.NewColumns) == 0 }

// Conn is the minimal database surface the Manager needs. *db.Client
// satisfies it.
type Conn interface {
	// Exec runs a DDL or DML statement and returns the affected-row count.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// TableColumns lists the live columns of table, or an empty slice when
	// the table does not exist.
	TableColumns(ctx context.Context, table string) ([]LiveColumn, error)
}

// InferenceError reports an empty, unreadable, or malformed tabular input.
// It is file-scoped: callers record it and continue with the next file.
type InferenceError struct {
	Source string
	Reason string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema inference: %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("schema inference: %s: %s", e.Source, e.Reason)
}

func (e *InferenceError) Unwrap() error { return e.Err }
