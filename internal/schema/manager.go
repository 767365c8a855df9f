package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Manager reconciles inferred schemas against live tables. It only ever
// proposes additive changes: no column is dropped, renamed, or retyped.
type Manager struct {
	conn   Conn
	logger *slog.Logger
}

// NewManager returns a Manager executing against conn. A nil logger falls
// back to slog.Default().
func NewManager(conn Conn, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{conn: conn, logger: logger}
}

// Reconcile compares an inferred schema against the live columns of an
// existing table and returns the additive diff.
//
// When existing is empty (table absent) every inferred column is new and the
// diff is compatible. Otherwise names are compared case-insensitively;
// inferred columns absent from the live set are new. A live column whose
// type family conflicts with the inferred one marks the diff incompatible
// but is never altered.
func Reconcile(existing []LiveColumn, inferred TableSchema) (Diff, error) {
	if len(existing) == 0 {
		return Diff{NewColumns: append([]ColumnDef(nil), inferred.Columns...), Compatible: true}, nil
	}

	live := make(map[string]LiveColumn, len(existing))
	for _, c := range existing {
		if c.Name == "" || c.DataType == "" {
			return Diff{}, fmt.Errorf("reconcile %s: live column record missing name or data type", inferred.TableName)
		}
		live[strings.ToLower(c.Name)] = c
	}

	diff := Diff{Compatible: true}
	for _, c := range inferred.Columns {
		lc, ok := live[strings.ToLower(c.Name)]
		if !ok {
			diff.NewColumns = append(diff.NewColumns, c)
			continue
		}
		if typeFamily(lc.DataType) != typeFamily(c.SQLType) {
			diff.Compatible = false
		}
	}
	return diff, nil
}

// EnsureSchema brings the live table in line with the inferred schema:
// create it verbatim when absent, append the diff's new columns when
// non-empty, no-op otherwise. Running it twice in a row applies no second
// change.
func (m *Manager) EnsureSchema(ctx context.Context, inferred TableSchema) (Diff, error) {
	existing, err := m.conn.TableColumns(ctx, inferred.TableName)
	if err != nil {
		return Diff{}, fmt.Errorf("ensure schema %s: list columns: %w", inferred.TableName, err)
	}

	if len(existing) == 0 {
		stmt, err := BuildCreateTableSQL(inferred)
		if err != nil {
			return Diff{}, err
		}
		if _, err := m.conn.Exec(ctx, stmt); err != nil {
			return Diff{}, fmt.Errorf("ensure schema %s: create table: %w", inferred.TableName, err)
		}
		m.logger.Info("created table",
			"table", inferred.TableName,
			"columns", len(inferred.Columns),
			"source_file", inferred.SourceFile)
		return Diff{NewColumns: inferred.Columns, Compatible: true}, nil
	}

	diff, err := Reconcile(existing, inferred)
	if err != nil {
		return Diff{}, err
	}
	if !diff.Compatible {
		m.logger.Warn("inferred schema conflicts with live column types; existing columns left untouched",
			"table", inferred.TableName)
	}
	if diff.Empty() {
		return diff, nil
	}

	stmt, err := BuildAddColumnsSQL(inferred.TableName, diff.NewColumns)
	if err != nil {
		return Diff{}, err
	}
	if _, err := m.conn.Exec(ctx, stmt); err != nil {
		return Diff{}, fmt.Errorf("ensure schema %s: add columns: %w", inferred.TableName, err)
	}
	m.logger.Info("added columns", "table", inferred.TableName, "count", len(diff.NewColumns))
	return diff, nil
}
