// Package pivot collapses a long-format variant table into one row per
// identity key. Key columns pass through unchanged; every other column is
// reduced with the collapse combinator. After pivoting, the engine proves
// that each genomic coordinate combination owns exactly one row, failing the
// whole operation (or quarantining the offenders) when it does not.
package pivot

import (
	"fmt"

	"github.com/rs/zerolog"

	"varpivot/internal/classify"
	"varpivot/internal/collapse"
	"varpivot/internal/table"
)

// DefaultIdentityColumns is the intra-file pivot key: the sample
// discriminator, the genomic coordinates, and the per-read support column
// that keeps distinct observations of the same variant apart.
var DefaultIdentityColumns = []string{
	table.ColSample, table.ColChrom, table.ColPos, table.ColRef, table.ColAlt,
	"FORMAT['SAOBS']",
}

// validationColumns define genomic identity for the post-pivot uniqueness
// check: the pivot key minus any extra discriminators beyond SAMPLE and the
// coordinates.
var validationColumns = []string{
	table.ColSample, table.ColChrom, table.ColPos, table.ColRef, table.ColAlt,
}

// Options configure one pivot run.
type Options struct {
	// IdentityColumns override DefaultIdentityColumns when set. Columns the
	// table lacks are skipped with a warning; when none remain, the engine
	// falls back to the bare genomic coordinates.
	IdentityColumns []string

	// SourceName is attached to every output row in the FILENAME column.
	SourceName string

	// Quarantine removes rows of violating genomic keys from the output and
	// returns their original contributing rows instead of failing.
	Quarantine bool

	Log zerolog.Logger
}

// Result is the output of one pivot run.
type Result struct {
	Table *table.Table

	// Quarantined holds the original (pre-pivot) rows of violating genomic
	// keys, deduplicated; nil unless quarantine mode removed anything.
	Quarantined *table.Table
}

// Pivot groups rows by the identity key and collapses every non-key column.
// The operation is atomic: either the full input pivots or an error is
// returned and no partial output exists.
func Pivot(t *table.Table, opts Options) (*Result, error) {
	log := opts.Log
	identity := opts.IdentityColumns
	if len(identity) == 0 {
		identity = DefaultIdentityColumns
	}
	available := presentColumns(t, identity, log)
	if len(available) == 0 {
		available = presentColumns(t, table.GenomicKey, log)
		if len(available) == 0 {
			return nil, fmt.Errorf("pivot: no identity columns present in table")
		}
		log.Warn().Strs("columns", available).Msg("falling back to bare genomic coordinates for pivot")
	}

	cls := classify.DefaultProfile(available).Table(t)
	var otherCols []string
	for _, c := range t.Columns {
		if cls[c] != classify.Key && c != "index" {
			otherCols = append(otherCols, c)
		}
	}

	out := &table.Table{Attrs: map[string]string{}}
	out.Columns = append(out.Columns, available...)
	out.Columns = append(out.Columns, otherCols...)
	out.AddColumn(table.ColFilename)

	if len(otherCols) == 0 {
		// Nothing to aggregate: emit the distinct keys tagged with the source.
		out.Rows = distinctKeyRows(t, available, opts.SourceName)
	} else {
		out.Rows = aggregate(t, available, otherCols, opts.SourceName)
	}
	table.SortByGenomicKey(out.Rows)
	log.Info().Int("in", len(t.Rows)).Int("out", len(out.Rows)).Strs("key", available).Msg("pivot complete")

	// Uniqueness proof over genomic identity. At least the four coordinates
	// must be present; otherwise the check cannot run and says so.
	checkCols := presentColumns(out, validationColumns, log)
	if len(checkCols) < len(table.GenomicKey) {
		log.Warn().Strs("columns", checkCols).Msg("insufficient genomic coordinate columns; uniqueness validation skipped")
		cloneAttrsFrom(t, out, opts.SourceName)
		return &Result{Table: out}, nil
	}

	violErr := table.CheckUnique("pivot validation", out.Rows, checkCols)
	if violErr == nil {
		cloneAttrsFrom(t, out, opts.SourceName)
		return &Result{Table: out}, nil
	}
	if !opts.Quarantine {
		return nil, violErr
	}

	quarantined, err := removeViolations(t, out, checkCols, violErr, log)
	if err != nil {
		return nil, err
	}
	cloneAttrsFrom(t, out, opts.SourceName)
	return &Result{Table: out, Quarantined: quarantined}, nil
}

// aggregate partitions rows by the identity key in first-seen order and
// collapses each group.
func aggregate(t *table.Table, keyCols, otherCols []string, source string) []table.Row {
	type group struct {
		first table.Row
		vals  map[string][]any
	}
	groups := map[string]*group{}
	var order []string
	for _, r := range t.Rows {
		k := table.KeyString(r, keyCols)
		g, ok := groups[k]
		if !ok {
			g = &group{first: r, vals: make(map[string][]any, len(otherCols))}
			groups[k] = g
			order = append(order, k)
		}
		for _, c := range otherCols {
			g.vals[c] = append(g.vals[c], r[c])
		}
	}
	rows := make([]table.Row, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := make(table.Row, len(keyCols)+len(otherCols)+1)
		for _, c := range keyCols {
			row[c] = g.first[c]
		}
		for _, c := range otherCols {
			row[c] = collapse.Values(g.vals[c])
		}
		row[table.ColFilename] = source
		rows = append(rows, row)
	}
	return rows
}

func distinctKeyRows(t *table.Table, keyCols []string, source string) []table.Row {
	seen := map[string]struct{}{}
	var rows []table.Row
	for _, r := range t.Rows {
		k := table.KeyString(r, keyCols)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		row := make(table.Row, len(keyCols)+1)
		for _, c := range keyCols {
			row[c] = r[c]
		}
		row[table.ColFilename] = source
		rows = append(rows, row)
	}
	return rows
}

// removeViolations strips all pivoted rows belonging to violating genomic
// keys, re-proves uniqueness (a residual violation means the collapse logic
// itself is broken, which is fatal), and collects the original contributing
// rows for the quarantine output.
func removeViolations(orig, out *table.Table, checkCols []string, violErr *table.KeyViolationError, log zerolog.Logger) (*table.Table, error) {
	// Matching runs on the raw KeyString encoding, so a nil-keyed violating
	// group never captures rows keyed by a genuine empty string.
	bad := make(map[string]struct{}, len(violErr.Violations))
	for _, v := range violErr.Violations {
		bad[v.Raw] = struct{}{}
	}

	kept := out.Rows[:0]
	removed := 0
	for _, r := range out.Rows {
		if _, hit := bad[table.KeyString(r, checkCols)]; hit {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	out.Rows = kept
	log.Warn().Int("violating_keys", len(violErr.Violations)).Int("removed_rows", removed).Msg("quarantine: removed violating keys from pivot output")

	if still := table.CheckUnique("pivot re-validation", out.Rows, checkCols); still != nil {
		return nil, fmt.Errorf("pivot: violations persist after quarantine, collapse logic is at fault: %w", error(still))
	}

	// Original rows for the violating keys, exact duplicates dropped.
	q := &table.Table{Columns: append([]string(nil), orig.Columns...), Attrs: map[string]string{}}
	seen := map[uint64]struct{}{}
	for _, r := range orig.Rows {
		if _, hit := bad[table.KeyString(r, checkCols)]; !hit {
			continue
		}
		fp := table.Fingerprint(r, orig.Columns)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		q.Rows = append(q.Rows, r)
	}
	q.SetAttr("processing_type", "quarantined")
	log.Warn().Int("rows", len(q.Rows)).Msg("quarantine: collected original contributing rows")
	return q, nil
}

func presentColumns(t *table.Table, want []string, log zerolog.Logger) []string {
	var out []string
	for _, c := range want {
		if t.HasColumn(c) {
			out = append(out, c)
		} else {
			log.Warn().Str("column", c).Msg("identity column not found in table")
		}
	}
	return out
}

func cloneAttrsFrom(src, dst *table.Table, source string) {
	for k, v := range src.Attrs {
		dst.Attrs[k] = v
	}
	dst.SetAttr("processing_type", "filtered_and_pivoted")
	dst.SetAttr("source", source)
}
