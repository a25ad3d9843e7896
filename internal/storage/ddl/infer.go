// Package ddl infers SQL column definitions from in-memory table values.
// The functions are pure and deterministic; both storage backends share
// them.
package ddl

import (
	"strings"

	"varpivot/internal/table"
)

// ColumnDef describes one column of the persisted form.
type ColumnDef struct {
	Name    string
	SQLType string // INTEGER, REAL, or TEXT
}

// Infer derives a column definition per declared column by scanning values:
// all-integer columns persist as INTEGER, numeric columns with any float as
// REAL, everything else as TEXT. A column whose values cannot be uniformly
// typed falls back to TEXT; rows are never dropped over typing.
func Infer(t *table.Table) []ColumnDef {
	defs := make([]ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, ColumnDef{Name: c, SQLType: inferColumn(t.Rows, c)})
	}
	return defs
}

func inferColumn(rows []table.Row, col string) string {
	sawValue := false
	allInt := true
	for _, r := range rows {
		v := r[col]
		if v == nil {
			continue
		}
		sawValue = true
		switch v.(type) {
		case int64, int:
		case float64:
			allInt = false
		default:
			return "TEXT"
		}
	}
	switch {
	case !sawValue:
		return "TEXT"
	case allInt:
		return "INTEGER"
	default:
		return "REAL"
	}
}

// Value converts a cell into a driver-friendly scalar. Lists and booleans
// are stored through their display form; nil stays NULL.
func Value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return t
	case int:
		return int64(t)
	default:
		return table.Format(t)
	}
}

// QuoteIdent double-quotes an identifier for SQLite and Postgres. Variant
// column names contain brackets and single quotes, so quoting is not
// optional here.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteAll quotes a list of identifiers.
func QuoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdent(n)
	}
	return out
}
