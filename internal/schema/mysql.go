package schema

import (
	"fmt"
	"strings"
)

// QuoteIdent backtick-quotes a MySQL identifier, escaping embedded backticks.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// BuildCreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement for the
// inferred schema. The IF NOT EXISTS guard is what makes concurrent
// first-time creation of the same table a benign race.
//
// The generated statement has the form:
//
//	CREATE TABLE IF NOT EXISTS `t` (
//	  `col1` TYPE NOT NULL,
//	  `col2` TYPE NULL
//	)
func BuildCreateTableSQL(t TableSchema) (string, error) {
	if strings.TrimSpace(t.TableName) == "" {
		return "", fmt.Errorf("mysql ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mysql ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def, err := renderColumn(c, t.TableName)
		if err != nil {
			return "", err
		}
		cols = append(cols, "  "+def)
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n%s\n)",
		QuoteIdent(t.TableName),
		strings.Join(cols, ",\n"),
	), nil
}

// BuildAddColumnsSQL renders a single additive ALTER TABLE statement for the
// given new columns. It never emits DROP, RENAME, or MODIFY clauses.
func BuildAddColumnsSQL(table string, cols []ColumnDef) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("mysql ddl: table name must not be empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("mysql ddl: no columns to add")
	}

	clauses := make([]string, 0, len(cols))
	for _, c := range cols {
		def, err := renderColumn(c, table)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "ADD COLUMN "+def)
	}
	return fmt.Sprintf("ALTER TABLE %s %s", QuoteIdent(table), strings.Join(clauses, ", ")), nil
}

func renderColumn(c ColumnDef, table string) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("mysql ddl: column with empty name in table %s", table)
	}
	typ := strings.TrimSpace(c.SQLType)
	if typ == "" {
		return "", fmt.Errorf("mysql ddl: column %s missing SQL type", name)
	}

	var sb strings.Builder
	sb.WriteString(QuoteIdent(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if c.Nullable {
		sb.WriteString(" NULL")
	} else {
		sb.WriteString(" NOT NULL")
	}
	return sb.String(), nil
}

// typeFamily buckets SQL types into coarse families for compatibility
// checks. MySQL reports BOOLEAN columns as tinyint, so booleans land in the
// integer family on purpose.
func typeFamily(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexAny(t, " ("); i > 0 {
		t = t[:i]
	}
	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "boolean", "bool", "bit":
		return "integer"
	case "float", "double", "decimal", "numeric", "real":
		return "float"
	case "date", "datetime", "timestamp", "time", "year":
		return "time"
	case "varchar", "char", "text", "tinytext", "mediumtext", "longtext", "enum", "set":
		return "string"
	default:
		return t
	}
}
