package merge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varpivot/internal/family"
	"varpivot/internal/rowfilter"
	"varpivot/internal/table"
)

/*
taggedInput builds one pivoted, family-tagged input table. Each variant is
(chrom, pos, ref, alt, af); the allele fraction lands in the family's
namespaced AF column.
*/
func taggedInput(id string, variants ...[5]any) *family.Tagged {
	af := family.AFColumn(id)
	t := table.New(table.ColChrom, table.ColPos, table.ColRef, table.ColAlt, af, table.ColFamily, "INFO['CLNSIG']")
	for _, v := range variants {
		t.Rows = append(t.Rows, table.Row{
			table.ColChrom: v[0], table.ColPos: v[1], table.ColRef: v[2], table.ColAlt: v[3],
			af: v[4], table.ColFamily: id, "INFO['CLNSIG']": "Benign",
		})
	}
	return &family.Tagged{Table: t, ID: id}
}

func TestMergeTwoFamiliesSharedVariant(t *testing.T) {
	f1 := taggedInput("F1",
		[5]any{"1", int64(100), "A", "T", 0.021},
		[5]any{"2", int64(500), "G", "C", 0.5},
	)
	f2 := taggedInput("F2",
		[5]any{"1", int64(100), "A", "T", 0.045},
	)
	out, err := Merge(context.Background(), []*family.Tagged{f1, f2}, Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)

	shared := out.Rows[0]
	assert.Equal(t, "1", shared[table.ColChrom])
	assert.Equal(t, int64(2), shared[table.ColRowCount])
	// Each family's allele fraction survives in its own column, never joined.
	assert.Equal(t, 0.021, shared["F1_AF"])
	assert.Equal(t, 0.045, shared["F2_AF"])

	only := out.Rows[1]
	assert.Equal(t, int64(1), only[table.ColRowCount])
	assert.Equal(t, 0.5, only["F1_AF"])
	assert.Nil(t, only["F2_AF"])
}

func TestMergeRowCountCutoff(t *testing.T) {
	shared3 := [5]any{"1", int64(100), "A", "T", 0.1}
	shared2 := [5]any{"2", int64(200), "G", "C", 0.2}
	f1 := taggedInput("F1", shared3, shared2, [5]any{"3", int64(300), "T", "A", 0.3})
	f2 := taggedInput("F2", shared3, shared2)
	f3 := taggedInput("F3", shared3)

	out, err := Merge(context.Background(), []*family.Tagged{f1, f2, f3},
		Options{RowCountCutoff: 2, Log: zerolog.Nop()})
	require.NoError(t, err)

	// The variant in all three families is dropped; the one in exactly two
	// survives, as does the private one.
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "2", out.Rows[0][table.ColChrom])
	assert.Equal(t, int64(2), out.Rows[0][table.ColRowCount])
	assert.Equal(t, "3", out.Rows[1][table.ColChrom])
	assert.Equal(t, int64(1), out.Rows[1][table.ColRowCount])
}

func TestMergeCutoffBounds(t *testing.T) {
	f1 := taggedInput("F1", [5]any{"1", int64(1), "A", "T", 0.1})
	f2 := taggedInput("F2", [5]any{"1", int64(1), "A", "T", 0.1})
	inputs := []*family.Tagged{f1, f2}

	_, err := Merge(context.Background(), inputs, Options{RowCountCutoff: 1, Log: zerolog.Nop()})
	assert.Error(t, err, "cutoff below 2 would drop every shared variant")

	_, err = Merge(context.Background(), inputs, Options{RowCountCutoff: 3, Log: zerolog.Nop()})
	assert.Error(t, err, "cutoff above the input count can never trigger")

	_, err = Merge(context.Background(), inputs, Options{RowCountCutoff: 0, Log: zerolog.Nop()})
	assert.NoError(t, err, "zero disables the cutoff")
}

func TestMergeFamilyCollision(t *testing.T) {
	f1 := taggedInput("F1", [5]any{"1", int64(1), "A", "T", 0.1})
	dup := taggedInput("F1", [5]any{"2", int64(2), "G", "C", 0.2})
	_, err := Merge(context.Background(), []*family.Tagged{f1, dup}, Options{Log: zerolog.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "F1")
}

func TestMergeRejectsUnpivotedInput(t *testing.T) {
	bad := taggedInput("F1",
		[5]any{"1", int64(100), "A", "T", 0.1},
		[5]any{"1", int64(100), "A", "T", 0.2},
	)
	_, err := Merge(context.Background(), []*family.Tagged{bad}, Options{Log: zerolog.Nop()})
	require.Error(t, err)
	var viol *table.KeyViolationError
	require.ErrorAs(t, err, &viol)
	assert.Contains(t, viol.Stage, "F1")
}

func TestMergeModes(t *testing.T) {
	f1 := taggedInput("F1", [5]any{"1", int64(100), "A", "T", 0.1})
	f1.Table.AddColumn("ANN['IMPACT']")
	f1.Table.AddColumn("ANN['Gene']")
	f1.Table.Rows[0]["ANN['IMPACT']"] = "HIGH"
	f1.Table.Rows[0]["ANN['Gene']"] = "ENSG01"

	// Curated: key + curated annotations + INFO + family columns; the
	// uncurated ANN['Gene'] is gone.
	out, err := Merge(context.Background(), []*family.Tagged{f1}, Options{Mode: ModeCurated, Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Contains(t, out.Columns, "ANN['IMPACT']")
	assert.Contains(t, out.Columns, "INFO['CLNSIG']")
	assert.Contains(t, out.Columns, "F1_AF")
	assert.NotContains(t, out.Columns, "ANN['Gene']")

	// All: everything survives.
	out, err = Merge(context.Background(), []*family.Tagged{f1}, Options{Mode: ModeAll, Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Contains(t, out.Columns, "ANN['Gene']")

	// Minimal: bare key plus the contribution count.
	out, err = Merge(context.Background(), []*family.Tagged{f1}, Options{Mode: ModeMinimal, Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, append(append([]string(nil), table.GenomicKey...), table.ColRowCount), out.Columns)
}

/*
TestMergeParallelMatchesSequential runs the same merge sequentially and with
several worker pool sizes; every configuration must produce identical rows.
*/
func TestMergeParallelMatchesSequential(t *testing.T) {
	var variants1, variants2 [][5]any
	for i := 0; i < 60; i++ {
		v := [5]any{"1", int64(1000 + i), "A", "T", 0.01}
		variants1 = append(variants1, v)
		if i%2 == 0 {
			variants2 = append(variants2, v)
		}
	}
	build := func() []*family.Tagged {
		return []*family.Tagged{
			taggedInput("F1", variants1...),
			taggedInput("F2", variants2...),
		}
	}
	want, err := Merge(context.Background(), build(), Options{Workers: 1, Log: zerolog.Nop()})
	require.NoError(t, err)
	for _, workers := range []int{2, 4, 8} {
		got, err := Merge(context.Background(), build(), Options{Workers: workers, Log: zerolog.Nop()})
		require.NoError(t, err)
		assert.Equal(t, want.Rows, got.Rows, "workers=%d", workers)
	}
}

func TestMergeIdentityPrefilter(t *testing.T) {
	f1 := taggedInput("F1",
		[5]any{"1", int64(100), "A", "T", 0.1},
		[5]any{"2", int64(900), "G", "C", 0.2},
	)
	filter := &rowfilter.IdentityFilter{}
	filter.AddRegion("1", 50, 150)
	out, err := Merge(context.Background(), []*family.Tagged{f1}, Options{Identity: filter, Log: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "1", out.Rows[0][table.ColChrom])
}

func TestMergeOccurrenceAnnotations(t *testing.T) {
	f1 := taggedInput("F1",
		[5]any{"1", int64(100), "A", "T", 0.1},
		[5]any{"1", int64(100), "A", "G", 0.2},
	)
	f2 := taggedInput("F2", [5]any{"1", int64(100), "A", "T", 0.3})

	out, err := Merge(context.Background(), []*family.Tagged{f1, f2},
		Options{Occurrence: true, Log: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)

	byAlt := map[string]table.Row{}
	for _, r := range out.Rows {
		byAlt[table.Format(r[table.ColAlt])] = r
	}
	assert.Equal(t, int64(2), byAlt["T"][ColVariantOccurrence])
	assert.Equal(t, int64(1), byAlt["G"][ColVariantOccurrence])
	assert.Equal(t, int64(2), byAlt["T"][ColUniqueAltCount])
	assert.Equal(t, int64(3), byAlt["T"][ColLocationOccurrence])
}

func TestMergeNoInputs(t *testing.T) {
	_, err := Merge(context.Background(), nil, Options{Log: zerolog.Nop()})
	assert.Error(t, err)
}
