package rowfilter

import (
	"strings"

	"github.com/biogo/store/interval"
	"github.com/rs/zerolog"

	"varpivot/internal/table"
)

// SymbolColumn is where annotated gene symbols live.
const SymbolColumn = "ANN['SYMBOL']"

// IdentityFilter keeps rows matching any configured inclusion criterion:
// gene symbol membership, rsID membership, or genomic interval overlap.
// The criteria are alternative ways of naming regions of interest, so they
// combine with OR; a filter with no criteria keeps everything.
type IdentityFilter struct {
	Symbols map[string]struct{}
	RsIDs   map[string]struct{}

	trees   map[string]*interval.IntTree
	regions int
}

// Empty reports whether no criterion is configured.
func (f *IdentityFilter) Empty() bool {
	return len(f.Symbols) == 0 && len(f.RsIDs) == 0 && f.regions == 0
}

// Regions returns the number of loaded genomic intervals.
func (f *IdentityFilter) Regions() int { return f.regions }

// bedRegion implements interval.IntInterface for the per-chromosome trees.
// BED coordinates are stored inclusive on both ends, matching how region
// lists are interpreted upstream.
type bedRegion struct {
	start, end int
	id         uintptr
}

func (r bedRegion) Overlap(b interval.IntRange) bool {
	return r.end >= b.Start && r.start <= b.End
}
func (r bedRegion) ID() uintptr { return r.id }
func (r bedRegion) Range() interval.IntRange { return interval.IntRange{Start: r.start, End: r.end} }

// AddRegion registers one genomic interval. Chromosome names are normalized
// by stripping a "chr" prefix and lowercasing, so "chr1", "Chr1" and "1" all
// address the same tree.
func (f *IdentityFilter) AddRegion(chrom string, start, end int) {
	if f.trees == nil {
		f.trees = map[string]*interval.IntTree{}
	}
	key := normChrom(chrom)
	tree, ok := f.trees[key]
	if !ok {
		tree = &interval.IntTree{}
		f.trees[key] = tree
	}
	f.regions++
	_ = tree.Insert(bedRegion{start: start, end: end, id: uintptr(f.regions)}, false)
}

func normChrom(c string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c)), "chr")
}

// identityDelimiters split multi-valued annotation fields.
var identityDelimiters = []string{";", ",", "&"}

// splitMulti breaks a multi-valued identity field on ";", ",", "|" and "&".
func splitMulti(s string) []string {
	for _, d := range identityDelimiters {
		s = strings.ReplaceAll(s, d, "|")
	}
	parts := strings.Split(s, "|")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Apply returns the rows matching at least one configured criterion. With no
// criteria configured the input passes through untouched.
func (f *IdentityFilter) Apply(t *table.Table, log zerolog.Logger) *table.Table {
	if f.Empty() {
		return t
	}
	hasSymbols := len(f.Symbols) > 0 && t.HasColumn(SymbolColumn)
	hasIDs := len(f.RsIDs) > 0 && t.HasColumn(table.ColID)
	hasRegions := f.regions > 0 && t.HasColumn(table.ColChrom) && t.HasColumn(table.ColPos)
	if len(f.Symbols) > 0 && !hasSymbols {
		log.Warn().Str("column", SymbolColumn).Msg("gene symbol column not found; skipping gene filtering")
	}
	if len(f.RsIDs) > 0 && !hasIDs {
		log.Warn().Str("column", table.ColID).Msg("ID column not found; skipping rsID filtering")
	}
	if !hasSymbols && !hasIDs && !hasRegions {
		log.Warn().Msg("no applicable columns for identity filtering; keeping all rows")
		return t
	}

	out := &table.Table{Columns: append([]string(nil), t.Columns...), Attrs: t.Attrs}
	for _, r := range t.Rows {
		if hasRegions && f.matchRegion(r) {
			out.Rows = append(out.Rows, r)
			continue
		}
		if hasSymbols && f.matchSet(r[SymbolColumn], f.Symbols) {
			out.Rows = append(out.Rows, r)
			continue
		}
		if hasIDs && f.matchSet(r[table.ColID], f.RsIDs) {
			out.Rows = append(out.Rows, r)
		}
	}
	log.Info().
		Int("before", len(t.Rows)).
		Int("after", len(out.Rows)).
		Int("symbols", len(f.Symbols)).
		Int("rsids", len(f.RsIDs)).
		Int("regions", f.regions).
		Msg("identity filters applied")
	return out
}

func (f *IdentityFilter) matchSet(v any, set map[string]struct{}) bool {
	if table.IsMissing(v) {
		return false
	}
	for _, part := range splitMulti(table.Format(v)) {
		if _, ok := set[part]; ok {
			return true
		}
	}
	return false
}

func (f *IdentityFilter) matchRegion(r table.Row) bool {
	tree, ok := f.trees[normChrom(table.Format(r[table.ColChrom]))]
	if !ok {
		return false
	}
	pos, ok := table.AsFloat(r[table.ColPos])
	if !ok {
		return false
	}
	p := int(pos)
	q := bedRegion{start: p, end: p}
	return len(tree.Get(q)) > 0
}
