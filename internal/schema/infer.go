package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// VARCHAR bucket boundaries. Observed max lengths snap up to the nearest
// bucket; anything above MaxVarchar becomes TEXT.
var varcharBuckets = []int{50, 100, 255}

// dateSampleCap bounds how many values per column are tested against the
// date layouts; parsing every layout for every value is wasteful on wide
// samples.
const dateSampleCap = 100

// InferOptions control sampling and schema shaping.
type InferOptions struct {
	// SourceFile is the originating file name or object key. It names the
	// table (normalized) and fills the source_file provenance column.
	SourceFile string
	// SampleRows caps how many data rows are read. Default 1000.
	SampleRows int
	// MaxVarchar is the widest VARCHAR emitted before falling back to TEXT.
	// Default 1024.
	MaxVarchar int
	// AddMetadataColumns appends the two non-nullable provenance columns.
	AddMetadataColumns bool
}

// Infer samples a tabular file and derives a column-by-column MySQL schema
// plus a normalized table name.
//
// Per column, in order: all values null → TEXT nullable; every non-null
// value boolean-like → BOOLEAN; integral → the narrowest integer type that
// bounds [min, max], unsigned preferred when min >= 0; floating point →
// DOUBLE; at least half of a capped sample parses as a date/timestamp →
// DATETIME; otherwise VARCHAR sized to the maximum observed length, snapped
// to the 50/100/255/MaxVarchar buckets, TEXT above MaxVarchar.
func Infer(r io.Reader, opts InferOptions) (TableSchema, error) {
	if opts.SampleRows <= 0 {
		opts.SampleRows = 1000
	}
	if opts.MaxVarchar <= 0 {
		opts.MaxVarchar = 1024
	}

	headers, rows, err := readSample(r, opts.SampleRows)
	if err != nil {
		return TableSchema{}, &InferenceError{Source: opts.SourceFile, Reason: "read sample", Err: err}
	}
	if len(headers) == 0 {
		return TableSchema{}, &InferenceError{Source: opts.SourceFile, Reason: "file is empty"}
	}

	// Column-major view of the sample.
	cols := make([][]string, len(headers))
	for _, row := range rows {
		for i := range headers {
			cols[i] = append(cols[i], row[i])
		}
	}

	defs := make([]ColumnDef, 0, len(headers)+2)
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		name := NormalizeIdentifier(h)
		// Distinct headers can normalize to the same identifier; suffix
		// duplicates to keep names unique within the table.
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = truncateIdentifier(fmt.Sprintf("%s_%d", name, n+1))
		} else {
			seen[name] = 1
		}

		sqlType, nullable := classifyColumn(cols[i], opts.MaxVarchar)
		defs = append(defs, ColumnDef{
			Name:         name,
			OriginalName: h,
			SQLType:      sqlType,
			Nullable:     nullable,
		})
	}

	if opts.AddMetadataColumns {
		defs = append(defs,
			ColumnDef{Name: ColIngestionTimestamp, OriginalName: ColIngestionTimestamp, SQLType: "TIMESTAMP", Nullable: false},
			ColumnDef{Name: ColSourceFile, OriginalName: ColSourceFile, SQLType: "VARCHAR(255)", Nullable: false},
		)
	}

	return TableSchema{
		TableName:       NormalizeTableName(opts.SourceFile),
		Columns:         defs,
		RowCountSampled: len(rows),
		SourceFile:      opts.SourceFile,
	}, nil
}

// readSample parses CSV data and returns headers plus up to maxRows data
// rows, padded/truncated to header width. It is tolerant of trimmed samples
// and malformed lines: rows that fail to parse are skipped rather than
// failing the whole read.
func readSample(r io.Reader, maxRows int) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	// Read header: skip malformed/empty lines until a usable one or EOF.
	var headers []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, nil, nil
		}
		if err != nil {
			if isParseError(err) {
				continue
			}
			return nil, nil, err
		}
		if len(rec) == 0 {
			continue
		}
		headers = stripBOM(rec)
		break
	}

	want := len(headers)
	rows := make([][]string, 0, min(maxRows, 1024))
	for len(rows) < maxRows {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isParseError(err) {
				continue
			}
			return nil, nil, err
		}
		if len(rec) == 0 {
			continue
		}
		rows = append(rows, fitRowToWidth(rec, want))
	}
	return headers, rows, nil
}

// isParseError distinguishes malformed CSV lines, which are skippable, from
// failures of the underlying reader, which must stop the read.
func isParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// fitRowToWidth truncates or pads a CSV record to exactly n fields.
func fitRowToWidth(row []string, n int) []string {
	if len(row) == n {
		return append([]string(nil), row...)
	}
	cp := make([]string, n)
	copy(cp, row)
	return cp
}

// stripBOM removes a UTF-8 BOM from the first header field if present.
func stripBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	return headers
}

// classifyColumn applies the type ladder to one column's sampled values.
func classifyColumn(values []string, maxVarchar int) (sqlType string, nullable bool) {
	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	nullable = len(nonEmpty) < len(values)

	if len(nonEmpty) == 0 {
		return "TEXT", true
	}
	if allMatch(nonEmpty, isBool) {
		return "BOOLEAN", nullable
	}
	if allMatch(nonEmpty, isInt) {
		return integerType(nonEmpty), nullable
	}
	if allMatch(nonEmpty, isFloat) {
		return "DOUBLE", nullable
	}
	if looksLikeDate(nonEmpty) {
		return "DATETIME", nullable
	}
	return stringType(nonEmpty, maxVarchar), nullable
}

// integerType picks the narrowest MySQL integer type bounding [min, max],
// preferring unsigned variants when min >= 0.
func integerType(values []string) string {
	var minV, maxV int64
	for i, v := range values {
		n, _ := strconv.ParseInt(v, 10, 64)
		if i == 0 || n < minV {
			minV = n
		}
		if i == 0 || n > maxV {
			maxV = n
		}
	}
	if minV >= 0 {
		switch {
		case maxV <= 255:
			return "TINYINT UNSIGNED"
		case maxV <= 65535:
			return "SMALLINT UNSIGNED"
		case maxV <= 4294967295:
			return "INT UNSIGNED"
		default:
			return "BIGINT UNSIGNED"
		}
	}
	switch {
	case minV >= -128 && maxV <= 127:
		return "TINYINT"
	case minV >= -32768 && maxV <= 32767:
		return "SMALLINT"
	case minV >= -2147483648 && maxV <= 2147483647:
		return "INT"
	default:
		return "BIGINT"
	}
}

// stringType sizes a VARCHAR to the maximum observed length, snapping to the
// common buckets and falling back to TEXT above maxVarchar.
func stringType(values []string, maxVarchar int) string {
	maxLen := 0
	for _, v := range values {
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}
	for _, b := range varcharBuckets {
		if maxLen <= b && b <= maxVarchar {
			return fmt.Sprintf("VARCHAR(%d)", b)
		}
	}
	if maxLen <= maxVarchar {
		return fmt.Sprintf("VARCHAR(%d)", maxVarchar)
	}
	return "TEXT"
}

// looksLikeDate reports whether at least half of a capped sample of the
// values parses with one of the known date/timestamp layouts.
func looksLikeDate(values []string) bool {
	sample := values
	if len(sample) > dateSampleCap {
		sample = sample[:dateSampleCap]
	}
	matched := 0
	for _, v := range sample {
		if parsesAsDate(v) {
			matched++
		}
	}
	return matched*2 >= len(sample)
}

func parsesAsDate(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// allMatch reports whether every value satisfies fn.
func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isBool accepts common textual booleans. Bare digits are excluded so that
// numeric columns stay on the integer branch of the ladder.
func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	default:
		return false
	}
}

// isInt requires a signed base-10 integer that fits in int64.
func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat accepts decimal or scientific notation floats. Values that parse
// as int are NOT floats, to keep integer columns narrow.
func isFloat(s string) bool {
	if isInt(s) {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// dateLayouts are common date formats without a time component.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"02/01/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
	"20060102",
}

// timestampLayouts are common formats with a time component.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
}
