package rowfilter

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"varpivot/internal/table"
)

func variantRow(chrom string, pos int64, symbol, id string) table.Row {
	return table.Row{
		table.ColChrom: chrom,
		table.ColPos:   pos,
		SymbolColumn:   symbol,
		table.ColID:    id,
	}
}

func identityTable(rows ...table.Row) *table.Table {
	t := table.New(table.ColChrom, table.ColPos, SymbolColumn, table.ColID)
	t.Rows = rows
	return t
}

func TestIdentityFilterEmptyPassesThrough(t *testing.T) {
	in := identityTable(variantRow("1", 100, "BRCA1", "rs1"))
	f := &IdentityFilter{}
	if !f.Empty() {
		t.Fatal("fresh filter should be empty")
	}
	out := f.Apply(in, zerolog.Nop())
	if out != in {
		t.Fatal("empty filter should return its input unchanged")
	}
}

/*
TestIdentityFilterOrSemantics checks that a row survives when any one
criterion matches: symbol, rsID, or region. The fourth row matches nothing
and is dropped.
*/
func TestIdentityFilterOrSemantics(t *testing.T) {
	f := &IdentityFilter{
		Symbols: map[string]struct{}{"BRCA1": {}},
		RsIDs:   map[string]struct{}{"rs777": {}},
	}
	f.AddRegion("chr7", 5000, 6000)

	in := identityTable(
		variantRow("1", 100, "BRCA1", "rs1"),     // symbol match
		variantRow("2", 200, "TP53", "rs777"),    // rsID match
		variantRow("7", 5500, "OTHER", "rs2"),    // region match, chr normalization
		variantRow("3", 300, "NOPE", "rs3"),      // no match
		variantRow("7", 7000, "ALSO_NO", "rs4"),  // outside the region
	)
	out := f.Apply(in, zerolog.Nop())
	var kept []string
	for _, r := range out.Rows {
		kept = append(kept, table.Format(r[SymbolColumn]))
	}
	want := []string{"BRCA1", "TP53", "OTHER"}
	if !reflect.DeepEqual(kept, want) {
		t.Fatalf("kept %v, want %v", kept, want)
	}
}

func TestIdentityFilterMultiValuedFields(t *testing.T) {
	f := &IdentityFilter{Symbols: map[string]struct{}{"SCN1A": {}}}
	in := identityTable(
		variantRow("1", 1, "SCN1A;SCN1A-AS1", "."),
		variantRow("1", 2, "GABRA1&GABRG2", "."),
		variantRow("1", 3, "TTN, SCN1A", "."),
	)
	out := f.Apply(in, zerolog.Nop())
	if len(out.Rows) != 2 {
		t.Fatalf("kept %d rows, want 2 (delimited symbol lists must split)", len(out.Rows))
	}
}

func TestIdentityFilterRegionBoundsInclusive(t *testing.T) {
	f := &IdentityFilter{}
	f.AddRegion("1", 100, 200)
	in := identityTable(
		variantRow("1", 100, ".", "."),
		variantRow("1", 200, ".", "."),
		variantRow("1", 99, ".", "."),
		variantRow("1", 201, ".", "."),
	)
	out := f.Apply(in, zerolog.Nop())
	if len(out.Rows) != 2 {
		t.Fatalf("kept %d rows, want 2 (both interval ends are inclusive)", len(out.Rows))
	}
}

func TestIdentityFilterMissingColumns(t *testing.T) {
	f := &IdentityFilter{Symbols: map[string]struct{}{"BRCA1": {}}}
	in := table.New(table.ColChrom, table.ColPos)
	in.Rows = []table.Row{{table.ColChrom: "1", table.ColPos: int64(1)}}
	out := f.Apply(in, zerolog.Nop())
	// No applicable column: warn and keep everything rather than drop all.
	if len(out.Rows) != 1 {
		t.Fatalf("kept %d rows, want 1", len(out.Rows))
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGeneFilterCSV(t *testing.T) {
	path := writeTemp(t, "genes.csv", "Symbol,rsID_paper\nBRCA1,rs111\nTP53,\n,rs222\nNA,notanid\n")
	f := &IdentityFilter{}
	if err := LoadGeneFilter(f, path); err != nil {
		t.Fatal(err)
	}
	wantSymbols := map[string]struct{}{"BRCA1": {}, "TP53": {}}
	if !reflect.DeepEqual(f.Symbols, wantSymbols) {
		t.Errorf("symbols = %v, want %v", f.Symbols, wantSymbols)
	}
	wantIDs := map[string]struct{}{"rs111": {}, "rs222": {}}
	if !reflect.DeepEqual(f.RsIDs, wantIDs) {
		t.Errorf("rsIDs = %v, want %v (non-rs values must be dropped)", f.RsIDs, wantIDs)
	}
}

func TestLoadGeneFilterTSV(t *testing.T) {
	path := writeTemp(t, "genes.tsv", "gene_symbol\tother\nSCN1A\tx\n")
	f := &IdentityFilter{}
	if err := LoadGeneFilter(f, path); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Symbols["SCN1A"]; !ok {
		t.Errorf("symbols = %v", f.Symbols)
	}
}

func TestLoadGeneFilterNoRecognizedHeader(t *testing.T) {
	path := writeTemp(t, "genes.csv", "foo,bar\na,b\n")
	if err := LoadGeneFilter(&IdentityFilter{}, path); err == nil {
		t.Fatal("expected error when neither Symbol nor rsID header present")
	}
}

func TestLoadBED(t *testing.T) {
	path := writeTemp(t, "regions.bed", "# comment\ntrack name=test\nchr1\t100\t200\tfeature\n2\t300\t400\n")
	f := &IdentityFilter{}
	if err := LoadBED(f, path); err != nil {
		t.Fatal(err)
	}
	if f.Regions() != 2 {
		t.Fatalf("loaded %d regions, want 2", f.Regions())
	}
	in := identityTable(
		variantRow("1", 150, ".", "."),
		variantRow("chr2", 350, ".", "."),
		variantRow("3", 100, ".", "."),
	)
	out := f.Apply(in, zerolog.Nop())
	if len(out.Rows) != 2 {
		t.Fatalf("kept %d rows, want 2", len(out.Rows))
	}
}

func TestLoadBEDRejectsMalformed(t *testing.T) {
	path := writeTemp(t, "bad.bed", "chr1\t100\n")
	if err := LoadBED(&IdentityFilter{}, path); err == nil {
		t.Fatal("expected error for a 2-column BED line")
	}
	path = writeTemp(t, "bad2.bed", "chr1\tabc\t200\n")
	if err := LoadBED(&IdentityFilter{}, path); err == nil {
		t.Fatal("expected error for a non-numeric start")
	}
}
