package store

import (
	"fmt"
	"sort"
	"strings"
)

// Placeholder renders the i-th (1-based) bind parameter of a dialect.
type Placeholder func(i int) string

// QuestionMark is the placeholder style of SQLite.
func QuestionMark(int) string { return "?" }

// Dollar is the placeholder style of PostgreSQL.
func Dollar(i int) string { return fmt.Sprintf("$%d", i) }

// sortedKeys returns the column names of row in a stable order so that the
// same row shape always produces the same statement.
func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InsertSQL builds a single-row INSERT statement and its arguments.
func InsertSQL(table string, row Row, ph Placeholder) (string, []any) {
	keys := sortedKeys(row)
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = Quote(k)
		marks[i] = ph(i + 1)
		args[i] = row[k]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return stmt, args
}

// SelectSQL builds an equality SELECT ordered by ref_key.
func SelectSQL(table string, preds Row, ph Placeholder) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(Quote(table))
	keys := sortedKeys(preds)
	args := make([]any, len(keys))
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(Quote(k))
		b.WriteString(" = ")
		b.WriteString(ph(i + 1))
		args[i] = preds[k]
	}
	b.WriteString(` ORDER BY "ref_key"`)
	return b.String(), args
}

// ColumnsSQL renders the column list of a CREATE TABLE statement using the
// dialect's type names.
func ColumnsSQL(columns []Column, typeName func(ColumnType) string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		def := Quote(c.Name) + " " + typeName(c.Type)
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Unique {
			def += " UNIQUE"
		}
		defs[i] = def
	}
	return strings.Join(defs, ", ")
}
