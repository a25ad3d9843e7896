// Package family resolves the source/family identity of each pivoted table
// and namespaces family-scoped columns with it, so allele fractions from
// different families survive the cross-file merge as distinct columns.
package family

import (
	"fmt"

	"github.com/rs/zerolog"

	"varpivot/internal/classify"
	"varpivot/internal/table"
)

// Tagged is a table with its resolved family identity.
type Tagged struct {
	Table *table.Table
	ID    string
}

// AFColumn is the namespaced allele-fraction column for a family.
func AFColumn(familyID string) string { return familyID + "_AF" }

// Tag resolves the family identifier of t and renames its family-scoped
// columns to embed it.
//
// If the table has rows and a family column, all of its distinct non-null
// values must collapse to exactly one; anything else means ambiguous or
// missing provenance and is a configuration error. Without a family column,
// or when every row of a file was quarantined away, the positional fallback
// (the file's processing index) is assigned and a warning recorded.
func Tag(t *table.Table, position int, log zerolog.Logger) (*Tagged, error) {
	var id string
	if t.HasColumn(table.ColFamily) && len(t.Rows) > 0 {
		distinct := distinctValues(t, table.ColFamily)
		switch len(distinct) {
		case 1:
			id = distinct[0]
		case 0:
			return nil, fmt.Errorf("family: table has a %q column but no values in it", table.ColFamily)
		default:
			return nil, fmt.Errorf("family: table carries %d distinct family identifiers %v; each input must have exactly one", len(distinct), distinct)
		}
	} else {
		id = fmt.Sprintf("%d", position)
		if len(t.Rows) == 0 {
			log.Warn().Str("family", id).Msg("no rows left to read a family identifier from; assigned positional fallback identifier")
		} else {
			log.Warn().Str("family", id).Msg("no family column; assigned positional fallback identifier")
		}
		t = withFamilyColumn(t, id)
	}

	renamed := t
	for _, c := range t.Columns {
		if classify.IsFamilyScoped(c) {
			renamed = renameColumn(renamed, c, AFColumn(id))
			log.Info().Str("from", c).Str("to", AFColumn(id)).Msg("namespaced family-scoped column")
		}
	}
	return &Tagged{Table: renamed, ID: id}, nil
}

// CheckCollisions verifies that every tagged table claims a distinct family
// identifier. Reused identifiers would silently fold two sources into one
// family column, so collisions are fatal.
func CheckCollisions(tagged []*Tagged) error {
	seen := map[string]int{}
	for i, tg := range tagged {
		if prev, ok := seen[tg.ID]; ok {
			return fmt.Errorf("family: identifier %q appears in inputs %d and %d; family identifiers must be unique across all inputs", tg.ID, prev+1, i+1)
		}
		seen[tg.ID] = i
	}
	return nil
}

func distinctValues(t *table.Table, col string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Rows {
		v := r[col]
		if table.IsMissing(v) {
			continue
		}
		s := table.Format(v)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func withFamilyColumn(t *table.Table, id string) *table.Table {
	out := &table.Table{Columns: append([]string(nil), t.Columns...), Attrs: t.Attrs}
	out.AddColumn(table.ColFamily)
	out.Rows = make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := r.Clone()
		nr[table.ColFamily] = id
		out.Rows = append(out.Rows, nr)
	}
	return out
}

func renameColumn(t *table.Table, from, to string) *table.Table {
	out := &table.Table{Attrs: t.Attrs}
	for _, c := range t.Columns {
		if c == from {
			out.Columns = append(out.Columns, to)
		} else {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make(table.Row, len(r))
		for k, v := range r {
			if k == from {
				nr[to] = v
			} else {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}
