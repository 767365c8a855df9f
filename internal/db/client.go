// Package db provides a pooled MySQL client for the ingestion pipeline.
//
// The client is a thin layer over database/sql: the stdlib pool already
// gives us thread-safe borrow/return with health-check-on-borrow (dead
// connections are discarded and redialed, never handed back out), so the
// only responsibilities left here are DSN construction, pool sizing, and
// building multi-row parameterized inserts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/config"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

// OpError is a connection or query failure, scoped to the operation that
// raised it. It is batch- or operation-scoped, never fatal to the process.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("db: %s: %v", e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

// Client wraps a *sql.DB pool. It is safe for concurrent use.
type Client struct {
	db *sql.DB
}

var _ schema.Conn = (*Client)(nil)

// Open connects to MySQL with the configured pool size and fails fast when
// the server is unreachable.
func Open(ctx context.Context, cfg config.DB) (*Client, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, &OpError{Op: "open", Err: err}
	}

	pool := cfg.PoolSize
	if pool <= 0 {
		pool = config.DefaultPoolSize
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &OpError{Op: "ping", Err: err}
	}
	return &Client{db: db}, nil
}

// Close releases the pool.
func (c *Client) Close() error { return c.db.Close() }

// Exec runs a parameterized statement and returns the affected-row count.
func (c *Client) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &OpError{Op: "exec", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &OpError{Op: "rows affected", Err: err}
	}
	return n, nil
}

// TableColumns lists the live columns of table via information_schema, in
// ordinal order. A missing table yields an empty slice, not an error.
func (c *Client) TableColumns(ctx context.Context, table string) ([]schema.LiveColumn, error) {
	const q = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

	rows, err := c.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, &OpError{Op: "table columns", Err: err}
	}
	defer rows.Close()

	var out []schema.LiveColumn
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, &OpError{Op: "table columns scan", Err: err}
		}
		out = append(out, schema.LiveColumn{
			Name:     name,
			DataType: strings.ToLower(dataType),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &OpError{Op: "table columns", Err: err}
	}
	return out, nil
}

// BatchInsert executes one multi-row parameterized INSERT for the given
// chunk inside its own transaction and returns the affected-row count.
// When ignoreDuplicates is set, duplicate-key collisions are skipped via
// INSERT IGNORE instead of failing the chunk.
func (c *Client) BatchInsert(ctx context.Context, table string, columns []string, rows [][]any, ignoreDuplicates bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, args, err := buildInsertSQL(table, columns, rows, ignoreDuplicates)
	if err != nil {
		return 0, &OpError{Op: "build insert", Err: err}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &OpError{Op: "begin tx", Err: err}
	}
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		_ = tx.Rollback()
		return 0, &OpError{Op: "batch insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &OpError{Op: "commit", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &OpError{Op: "rows affected", Err: err}
	}
	return n, nil
}

// Truncate empties the table. Used only when a pre-load TRUNCATE is
// configured.
func (c *Client) Truncate(ctx context.Context, table string) error {
	if _, err := c.db.ExecContext(ctx, "TRUNCATE TABLE "+schema.QuoteIdent(table)); err != nil {
		return &OpError{Op: "truncate " + table, Err: err}
	}
	return nil
}

// buildInsertSQL renders INSERT [IGNORE] INTO `t` (`c`, ...) VALUES (?, ...),
// (?, ...) and flattens the row values into the argument slice.
func buildInsertSQL(table string, columns []string, rows [][]any, ignoreDuplicates bool) (string, []any, error) {
	if table == "" {
		return "", nil, fmt.Errorf("table name must not be empty")
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("at least one column is required")
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = schema.QuoteIdent(col)
	}

	verb := "INSERT"
	if ignoreDuplicates {
		verb = "INSERT IGNORE"
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		tuples[i] = placeholder
		args = append(args, row...)
	}

	stmt := fmt.Sprintf("%s INTO %s (%s) VALUES %s",
		verb,
		schema.QuoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(tuples, ", "),
	)
	return stmt, args, nil
}
