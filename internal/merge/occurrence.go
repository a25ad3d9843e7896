package merge

import (
	"varpivot/internal/table"
)

// Occurrence annotation columns, mirroring the grouped-data report the
// pipeline historically produced alongside the merge.
const (
	ColVariantOccurrence  = "variant_occurrence_between_families_count"
	ColUniqueAltCount     = "unique_alternative_allele_count"
	ColLocationOccurrence = "location_occurrence_across_families"
)

// annotateOccurrences attaches cross-family occurrence counts to every
// merged row:
//
//   - how many source rows carry the same alternate allele at the same
//     position (summed contribution counts per CHROM/POS/ALT),
//   - how many distinct alternate alleles exist at the position,
//   - how many source rows touch the position at all.
func annotateOccurrences(t *table.Table) {
	type posKey struct{ chrom, pos string }
	type altKey struct{ chrom, pos, alt string }

	perAlt := map[altKey]int64{}
	perPos := map[posKey]int64{}
	altsAt := map[posKey]map[string]struct{}{}

	for _, r := range t.Rows {
		n, _ := table.AsFloat(r[table.ColRowCount])
		pk := posKey{table.Format(r[table.ColChrom]), table.Format(r[table.ColPos])}
		ak := altKey{pk.chrom, pk.pos, table.Format(r[table.ColAlt])}
		perAlt[ak] += int64(n)
		perPos[pk] += int64(n)
		if altsAt[pk] == nil {
			altsAt[pk] = map[string]struct{}{}
		}
		altsAt[pk][ak.alt] = struct{}{}
	}

	t.AddColumn(ColVariantOccurrence)
	t.AddColumn(ColUniqueAltCount)
	t.AddColumn(ColLocationOccurrence)
	for _, r := range t.Rows {
		pk := posKey{table.Format(r[table.ColChrom]), table.Format(r[table.ColPos])}
		ak := altKey{pk.chrom, pk.pos, table.Format(r[table.ColAlt])}
		r[ColVariantOccurrence] = perAlt[ak]
		r[ColUniqueAltCount] = int64(len(altsAt[pk]))
		r[ColLocationOccurrence] = perPos[pk]
	}
}
