// Package classify assigns every column of a table to exactly one treatment
// class before any aggregation runs. Downstream stages (pivot, family
// tagging, cross-file merge) consume the classification instead of matching
// column-name substrings ad hoc, so the rules live in one testable place.
package classify

import (
	"strings"

	"golang.org/x/text/cases"

	"varpivot/internal/table"
)

// Class is the aggregation treatment of a column.
type Class int

const (
	// Generic columns are reduced with the standard collapse combinator.
	Generic Class = iota
	// Key columns form the group identity and pass through unchanged.
	Key
	// FamilyScoped columns carry per-sample values (allele fractions) that
	// must stay distinct per source family across the merge.
	FamilyScoped
	// InfoNamespaced columns live in the VCF INFO namespace and are always
	// retained by the curated merge output mode.
	InfoNamespaced
)

func (c Class) String() string {
	switch c {
	case Key:
		return "key"
	case FamilyScoped:
		return "family-scoped"
	case InfoNamespaced:
		return "info"
	default:
		return "generic"
	}
}

// Profile holds the naming conventions of one table's schema.
type Profile struct {
	// KeyColumns form the group identity for the stage at hand.
	KeyColumns []string

	// FamilySuffix marks post-tagging family columns, e.g. "_AF".
	FamilySuffix string

	// InfoPrefix marks INFO-namespace columns, e.g. "INFO[".
	InfoPrefix string
}

// DefaultProfile matches the vembrane-style TSV headers the pipeline ingests:
// FORMAT['AF'] per-sample allele fraction, INFO[...] annotation namespace.
func DefaultProfile(keyColumns []string) Profile {
	return Profile{
		KeyColumns:   keyColumns,
		FamilySuffix: "_AF",
		InfoPrefix:   "INFO[",
	}
}

// Classification is the per-column class map for one table.
type Classification map[string]Class

// Table classifies every column of t under the profile. The classification
// is computed once per table and shared by all downstream stages.
func (p Profile) Table(t *table.Table) Classification {
	keys := make(map[string]struct{}, len(p.KeyColumns))
	for _, k := range p.KeyColumns {
		keys[k] = struct{}{}
	}
	out := make(Classification, len(t.Columns))
	for _, c := range t.Columns {
		switch {
		case hasKey(keys, c):
			out[c] = Key
		case IsFamilyScoped(c) || (p.FamilySuffix != "" && strings.HasSuffix(c, p.FamilySuffix)):
			out[c] = FamilyScoped
		case p.InfoPrefix != "" && strings.HasPrefix(c, p.InfoPrefix):
			out[c] = InfoNamespaced
		default:
			out[c] = Generic
		}
	}
	return out
}

func hasKey(keys map[string]struct{}, c string) bool {
	_, ok := keys[c]
	return ok
}

// IsFamilyScoped reports whether a raw (pre-tagging) column carries a
// per-sample allele fraction, i.e. FORMAT['AF'] and spelling variants.
func IsFamilyScoped(col string) bool {
	return strings.HasPrefix(col, "FORMAT[") && strings.Contains(col, "'AF'")
}

var fold = cases.Fold()

// IsFrequencyLike reports whether a column holds population-frequency style
// values. Rows missing such values are always kept by threshold filters so
// unannotated (novel) variants survive filtering.
func IsFrequencyLike(col string) bool {
	f := fold.String(col)
	return strings.Contains(strings.ToUpper(col), "AF") || strings.Contains(f, "freq")
}

// ResolveColumn finds the table column matching name, first exactly, then
// case-insensitively. Configuration files routinely lowercase column names;
// the data headers do not.
func ResolveColumn(t *table.Table, name string) (string, bool) {
	if t.HasColumn(name) {
		return name, true
	}
	want := fold.String(name)
	for _, c := range t.Columns {
		if fold.String(c) == want {
			return c, true
		}
	}
	return "", false
}
