// Package rowfilter implements the two filter families applied before the
// pivot: column predicates (threshold/set/substring tests combined with AND)
// and identity filters (gene symbol, rsID, genomic interval membership
// combined with OR).
//
// Frequency-like columns get special null handling: a row whose frequency
// cell is missing always passes the predicate, whatever the operator says.
// Variants without population-frequency annotation are usually the novel
// ones the analysis is after; a threshold filter must not silently drop them.
package rowfilter

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"varpivot/internal/classify"
	"varpivot/internal/table"
)

// Operator names accepted in filter configuration.
const (
	OpEq          = "=="
	OpNe          = "!="
	OpLt          = "<"
	OpLe          = "<="
	OpGt          = ">"
	OpGe          = ">="
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpContains    = "contains"
	OpNotContains = "not_contains"
)

// Predicate is one configured column filter.
type Predicate struct {
	Column   string
	Operator string
	Value    any // int64, float64, bool, string, or []any for in/not_in
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Column, p.Operator, p.Value)
}

// Apply evaluates every predicate against every row and returns the rows for
// which all predicates hold (logical AND). A predicate naming a column the
// table does not have is a configuration error; the column name is resolved
// case-insensitively first.
func Apply(t *table.Table, preds []Predicate, log zerolog.Logger) (*table.Table, error) {
	if len(preds) == 0 {
		return t, nil
	}
	resolved := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		col, ok := classify.ResolveColumn(t, p.Column)
		if !ok {
			return nil, fmt.Errorf("rowfilter: filter column %q not found in table", p.Column)
		}
		if col != p.Column {
			log.Info().Str("configured", p.Column).Str("resolved", col).Msg("case-insensitive filter column match")
		}
		p.Column = col
		resolved = append(resolved, p)
	}

	out := &table.Table{Columns: append([]string(nil), t.Columns...), Attrs: t.Attrs}
	kept := make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		keep := true
		for _, p := range resolved {
			ok, err := matches(r, p)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, r)
		}
	}
	out.Rows = kept
	log.Info().Int("before", len(t.Rows)).Int("after", len(kept)).Msg("column predicates applied")
	return out, nil
}

func matches(r table.Row, p Predicate) (bool, error) {
	v := r[p.Column]
	freq := classify.IsFrequencyLike(p.Column)
	if table.IsMissing(v) {
		// Frequency columns: missing always passes. Everything else: missing
		// fails unless the operator is explicitly null-tolerant.
		if freq {
			return true, nil
		}
		switch p.Operator {
		case OpNe, OpNotIn, OpNotContains:
			return true, nil
		}
		return false, nil
	}

	switch p.Operator {
	case OpEq, OpNe:
		eq := looseEqual(v, p.Value, freq)
		if p.Operator == OpEq {
			return eq, nil
		}
		return !eq, nil
	case OpLt, OpLe, OpGt, OpGe:
		a, aok := numericValue(v, freq)
		b, bok := table.AsFloat(p.Value)
		if !aok || !bok {
			// Non-numeric cell under a numeric operator fails the test; for
			// frequency columns the missing-value branch above already kept
			// truly absent cells.
			return false, nil
		}
		switch p.Operator {
		case OpLt:
			return a < b, nil
		case OpLe:
			return a <= b, nil
		case OpGt:
			return a > b, nil
		default:
			return a >= b, nil
		}
	case OpIn, OpNotIn:
		set := valueList(p.Value)
		found := false
		for _, want := range set {
			if looseEqual(v, want, freq) {
				found = true
				break
			}
		}
		if p.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	case OpContains, OpNotContains:
		has := strings.Contains(table.Format(v), table.Format(p.Value))
		if p.Operator == OpContains {
			return has, nil
		}
		return !has, nil
	default:
		return false, fmt.Errorf("rowfilter: unknown operator %q", p.Operator)
	}
}

// numericValue coerces cells of frequency-like columns to numbers; other
// columns only compare numerically when they already hold numbers.
func numericValue(v any, freq bool) (float64, bool) {
	if freq {
		return table.AsFloat(v)
	}
	switch v.(type) {
	case int64, int, float64:
		return table.AsFloat(v)
	default:
		return 0, false
	}
}

func looseEqual(a, b any, freq bool) bool {
	if fa, aok := numericValue(a, freq); aok {
		if fb, bok := table.AsFloat(b); bok {
			return fa == fb
		}
	}
	return table.Format(a) == table.Format(b)
}

func valueList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}
