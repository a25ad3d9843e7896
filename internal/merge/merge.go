// Package merge unions many independently pivoted, family-tagged tables into
// one table keyed purely by genomic coordinates. Family-scoped columns are
// aggregated with the at-most-one-per-family combinator, everything else
// with the general collapse combinator, and each output row carries the
// number of source rows folded into it.
//
// Per-group aggregation is embarrassingly parallel and runs on a bounded
// errgroup pool; with Workers <= 1 the engine degrades to strictly
// sequential execution with identical output. Results land in a slice
// indexed by group discovery order and get a final deterministic sort, so
// the output does not depend on worker count or scheduling.
package merge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"varpivot/internal/classify"
	"varpivot/internal/collapse"
	"varpivot/internal/family"
	"varpivot/internal/rowfilter"
	"varpivot/internal/table"
)

// Mode selects the output column set.
type Mode string

const (
	// ModeCurated keeps the genomic key, a fixed annotation subset, every
	// INFO-namespace column, and every family-scoped column.
	ModeCurated Mode = "curated"
	// ModeAll keeps every column from every input.
	ModeAll Mode = "all"
	// ModeMinimal keeps only the key columns plus the contribution count,
	// skipping aggregation of everything else.
	ModeMinimal Mode = "minimal"
)

// curatedAnnotations is the fixed annotation subset of ModeCurated.
var curatedAnnotations = []string{
	"ANN['MAX_AF']", "ANN['VARIANT_CLASS']", "ANN['Feature_type']",
	"ANN['IMPACT']", "ANN['SYMBOL']",
}

// Options configure one merge run.
type Options struct {
	Mode Mode

	// RowCountCutoff, when > 0, drops groups contributed to by more than
	// cutoff sources after aggregation. Valid range is 2 <= cutoff <= number
	// of input tables.
	RowCountCutoff int

	// Identity optionally prefilters every input before the union.
	Identity *rowfilter.IdentityFilter

	// Workers bounds the aggregation pool; <= 1 means sequential.
	Workers int

	// Occurrence enables the cross-family occurrence annotation columns.
	Occurrence bool

	Log zerolog.Logger
}

// Merge combines the tagged tables. All configuration errors (cutoff bounds,
// family collisions) surface before any aggregation work begins.
func Merge(ctx context.Context, inputs []*family.Tagged, opts Options) (*table.Table, error) {
	log := opts.Log
	if len(inputs) == 0 {
		return nil, fmt.Errorf("merge: no input tables")
	}
	if opts.Mode == "" {
		opts.Mode = ModeCurated
	}
	if opts.RowCountCutoff != 0 && (opts.RowCountCutoff < 2 || opts.RowCountCutoff > len(inputs)) {
		return nil, fmt.Errorf("merge: row count cutoff %d out of range [2, %d]", opts.RowCountCutoff, len(inputs))
	}
	if err := family.CheckCollisions(inputs); err != nil {
		return nil, err
	}

	// Defense in depth: every input must already satisfy the genomic
	// uniqueness invariant. A table that was never pivoted fails here with
	// the offending keys named.
	for i, in := range inputs {
		stage := fmt.Sprintf("merge input %d (family %s)", i+1, in.ID)
		if err := table.CheckUnique(stage, in.Table.Rows, presentKey(in.Table)); err != nil {
			return nil, err
		}
	}

	// Optional identity prefilter, applied per input before the union to
	// shrink the merge working set.
	tables := make([]*table.Table, len(inputs))
	for i, in := range inputs {
		t := in.Table
		if opts.Identity != nil && !opts.Identity.Empty() {
			t = opts.Identity.Apply(t, log.With().Str("family", in.ID).Logger())
		}
		tables[i] = t
	}

	unionCols := table.UnionColumns(tables)
	keep := selectColumns(unionCols, opts.Mode)
	aggCols := withoutKeys(keep)

	// Union in input order; rows read nil for columns their source lacked.
	var union []table.Row
	for _, t := range tables {
		union = append(union, t.Rows...)
	}
	log.Info().Int("tables", len(tables)).Int("rows", len(union)).Int("columns", len(keep)).Str("mode", string(opts.Mode)).Msg("union complete")

	groups, order := partition(union, table.GenomicKey)

	out := &table.Table{Attrs: map[string]string{}}
	out.Columns = append(out.Columns, table.GenomicKey...)
	if opts.Mode != ModeMinimal {
		out.Columns = append(out.Columns, aggCols...)
	}
	out.AddColumn(table.ColRowCount)

	rows := make([]table.Row, len(order))
	if opts.Mode == ModeMinimal {
		for i, k := range order {
			g := groups[k]
			rows[i] = keyRow(g[0], int64(len(g)))
		}
	} else {
		cls := classify.DefaultProfile(table.GenomicKey).Table(&table.Table{Columns: aggCols})
		if err := aggregateGroups(ctx, groups, order, aggCols, cls, rows, opts); err != nil {
			return nil, err
		}
	}

	if opts.RowCountCutoff > 0 {
		rows = applyCutoff(rows, opts.RowCountCutoff, log)
	}
	table.SortByGenomicKey(rows)
	out.Rows = rows

	if opts.Occurrence && opts.Mode != ModeMinimal {
		annotateOccurrences(out)
	}

	out.SetAttr("processing_type", "cross_file_aggregated")
	out.SetAttr("inputs", fmt.Sprintf("%d", len(inputs)))
	log.Info().Int("variants", len(out.Rows)).Msg("merge complete")
	return out, nil
}

// aggregateGroups collapses every group, fanned out over the worker pool.
// rows[i] receives group order[i], so the result layout is fixed before any
// worker runs and no two tasks share mutable state.
func aggregateGroups(ctx context.Context, groups map[string][]table.Row, order []string, aggCols []string, cls classify.Classification, rows []table.Row, opts Options) error {
	work := func(i int) {
		g := groups[order[i]]
		row := keyRow(g[0], int64(len(g)))
		for _, c := range aggCols {
			vals := make([]any, 0, len(g))
			for _, r := range g {
				vals = append(vals, r[c])
			}
			if cls[c] == classify.FamilyScoped {
				row[c] = collapse.FamilyValue(vals, c, opts.Log)
			} else {
				row[c] = collapse.Values(vals)
			}
		}
		rows[i] = row
	}

	if opts.Workers <= 1 {
		for i := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			work(i)
		}
		return nil
	}

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i := range order {
		i := i
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			work(i)
			return nil
		})
	}
	return eg.Wait()
}

func keyRow(first table.Row, count int64) table.Row {
	row := table.Row{}
	for _, c := range table.GenomicKey {
		row[c] = first[c]
	}
	row[table.ColRowCount] = count
	return row
}

// partition groups rows by key in first-seen order.
func partition(rows []table.Row, keyCols []string) (map[string][]table.Row, []string) {
	groups := map[string][]table.Row{}
	var order []string
	for _, r := range rows {
		k := table.KeyString(r, keyCols)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	return groups, order
}

// selectColumns builds the kept column set for the mode, key columns first.
func selectColumns(unionCols []string, mode Mode) []string {
	switch mode {
	case ModeAll:
		out := append([]string(nil), table.GenomicKey...)
		for _, c := range unionCols {
			if !isKey(c) {
				out = append(out, c)
			}
		}
		return out
	case ModeMinimal:
		return append([]string(nil), table.GenomicKey...)
	default:
		out := append([]string(nil), table.GenomicKey...)
		cls := classify.DefaultProfile(table.GenomicKey).Table(&table.Table{Columns: unionCols})
		curated := map[string]struct{}{}
		for _, c := range curatedAnnotations {
			curated[c] = struct{}{}
		}
		for _, c := range unionCols {
			if isKey(c) {
				continue
			}
			_, isCurated := curated[c]
			switch {
			case isCurated,
				cls[c] == classify.InfoNamespaced,
				cls[c] == classify.FamilyScoped,
				c == table.ColFamily,
				c == table.ColSample:
				out = append(out, c)
			}
		}
		return out
	}
}

func withoutKeys(cols []string) []string {
	var out []string
	for _, c := range cols {
		if !isKey(c) {
			out = append(out, c)
		}
	}
	return out
}

func isKey(c string) bool {
	for _, k := range table.GenomicKey {
		if c == k {
			return true
		}
	}
	return false
}

func presentKey(t *table.Table) []string {
	var out []string
	for _, c := range table.GenomicKey {
		if t.HasColumn(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return table.GenomicKey
	}
	return out
}

// applyCutoff drops groups shared by more than cutoff sources. Running after
// aggregation trades some wasted work for a single code path; the survivors
// are already fully aggregated.
func applyCutoff(rows []table.Row, cutoff int, log zerolog.Logger) []table.Row {
	kept := rows[:0]
	dropped := 0
	for _, r := range rows {
		n, _ := table.AsFloat(r[table.ColRowCount])
		if int(n) > cutoff {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	log.Info().Int("cutoff", cutoff).Int("dropped", dropped).Int("kept", len(kept)).Msg("row count cutoff applied")
	return kept
}
