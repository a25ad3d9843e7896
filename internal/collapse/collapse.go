// Package collapse implements the value combinators used when many rows fold
// into one. The general combinator keeps a lone distinct value with its type
// intact and joins divergent values into a ";"-delimited string in sorted
// order; the family combinator additionally enforces that one source family
// contributes at most one value per variant.
//
// Both combinators are pure functions of the value multiset: flattening
// already-collapsed lists before deduplicating makes repeated aggregation a
// fixed point, which is what lets the cross-file merge re-collapse columns
// that the intra-file pivot collapsed already.
package collapse

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"varpivot/internal/table"
)

// Delimiter joins divergent values in collapsed output.
const Delimiter = ";"

// Values reduces the multiset of one column's values for one group.
//
//   - no non-missing values        -> nil
//   - one distinct value           -> that value, original type preserved
//   - several distinct values      -> delimited string, sorted lexically
//
// List-valued inputs (from a prior collapse) are flattened first, so
// Values(Values(xs)) == Values(xs). The sorted join makes the cell a pure
// function of the value multiset, independent of input row order.
func Values(vals []any) any {
	flat := flatten(vals)
	if len(flat) == 0 {
		return nil
	}
	uniq := dedupe(flat)
	if len(uniq) == 1 {
		return uniq[0]
	}
	parts := make([]string, 0, len(uniq))
	for _, v := range uniq {
		s := table.Format(v)
		// String forms of missing values never make it into joined output.
		if s == "nan" || s == "None" || table.IsMissing(s) {
			continue
		}
		parts = append(parts, s)
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		sort.Strings(parts)
		return strings.Join(parts, Delimiter)
	}
}

// FamilyValue reduces a family-scoped column (one source's allele fraction)
// for one genomic key. A family legitimately contributes zero or one value;
// several identical contributions collapse silently. Distinct values signal
// noisy input: the first is kept and the condition is logged as a warning,
// never treated as fatal.
func FamilyValue(vals []any, column string, log zerolog.Logger) any {
	flat := flatten(vals)
	if len(flat) == 0 {
		return nil
	}
	uniq := dedupe(flat)
	if len(uniq) > 1 {
		log.Warn().
			Str("column", column).
			Interface("values", uniq).
			Msg("multiple distinct values for one family within one variant; keeping first")
	}
	return uniq[0]
}

// flatten drops missing values and expands list cells into their elements.
func flatten(vals []any) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if table.IsMissing(v) {
			continue
		}
		if list, ok := v.([]any); ok {
			for _, e := range list {
				if !table.IsMissing(e) {
					out = append(out, e)
				}
			}
			continue
		}
		// A previously collapsed multi-value cell re-enters as a delimited
		// string; split it back so re-aggregation stays idempotent.
		if s, ok := v.(string); ok && strings.Contains(s, Delimiter) {
			for _, e := range strings.Split(s, Delimiter) {
				if !table.IsMissing(e) {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

// dedupe keeps the first occurrence of each distinct value. Distinctness is
// judged on the formatted representation so 10 (int64) and "10" collapse,
// matching how the persisted flat form reads back.
func dedupe(vals []any) []any {
	seen := make(map[string]struct{}, len(vals))
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		s := table.Format(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, v)
	}
	return out
}
