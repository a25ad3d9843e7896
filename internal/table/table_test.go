package table

import (
	"reflect"
	"testing"
)

func TestIsMissing(t *testing.T) {
	missing := []any{nil, "", ".", "NA", "NULL", "null"}
	for _, v := range missing {
		if !IsMissing(v) {
			t.Errorf("IsMissing(%#v) = false, want true", v)
		}
	}
	present := []any{"0", int64(0), 0.0, false, "x", "na"}
	for _, v := range present {
		if IsMissing(v) {
			t.Errorf("IsMissing(%#v) = true, want false", v)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{int64(7), "7"},
		{0.021, "0.021"},
		{true, "true"},
		{[]any{int64(1), "a"}, "1;a"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyString(t *testing.T) {
	r := Row{ColChrom: "1", ColPos: int64(100), ColRef: "A", ColAlt: "T"}
	a := KeyString(r, GenomicKey)
	b := KeyString(Row{ColChrom: "1", ColPos: "100", ColRef: "A", ColAlt: "T"}, GenomicKey)
	if a != b {
		t.Errorf("int64 and string positions should key identically: %q vs %q", a, b)
	}
	// A nil cell and an empty string cell are different identities.
	c := KeyString(Row{ColChrom: "1", ColPos: int64(100), ColRef: "A"}, GenomicKey)
	d := KeyString(Row{ColChrom: "1", ColPos: int64(100), ColRef: "A", ColAlt: ""}, GenomicKey)
	if c == d {
		t.Errorf("nil and empty-string cells should key apart")
	}
}

func TestFingerprint(t *testing.T) {
	cols := []string{"a", "b"}
	r1 := Row{"a": int64(1), "b": "x"}
	r2 := Row{"a": int64(1), "b": "x"}
	r3 := Row{"a": int64(1), "b": "y"}
	if Fingerprint(r1, cols) != Fingerprint(r2, cols) {
		t.Errorf("identical rows must fingerprint identically")
	}
	if Fingerprint(r1, cols) == Fingerprint(r3, cols) {
		t.Errorf("differing rows should fingerprint apart")
	}
}

func TestUnionColumns(t *testing.T) {
	a := New("CHROM", "POS", "X")
	b := New("CHROM", "Y", "POS")
	got := UnionColumns([]*Table{a, b})
	want := []string{"CHROM", "POS", "X", "Y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UnionColumns = %v, want %v", got, want)
	}
}

func TestDropColumns(t *testing.T) {
	tbl := New("a", "b", "c")
	tbl.Rows = []Row{{"a": int64(1), "b": int64(2), "c": int64(3)}}
	out := tbl.DropColumns([]string{"b", "nope"})
	if !reflect.DeepEqual(out.Columns, []string{"a", "c"}) {
		t.Fatalf("columns = %v", out.Columns)
	}
	if _, ok := out.Rows[0]["b"]; ok {
		t.Fatalf("dropped column still present in row")
	}
	// The receiver is untouched.
	if !tbl.HasColumn("b") {
		t.Fatalf("DropColumns mutated its receiver")
	}
}

func TestSortByGenomicKey(t *testing.T) {
	rows := []Row{
		{ColChrom: "X", ColPos: int64(5), ColRef: "A", ColAlt: "T"},
		{ColChrom: "10", ColPos: int64(1), ColRef: "A", ColAlt: "T"},
		{ColChrom: "2", ColPos: int64(300), ColRef: "A", ColAlt: "T"},
		{ColChrom: "chr2", ColPos: int64(100), ColRef: "A", ColAlt: "T"},
		{ColChrom: "2", ColPos: int64(100), ColRef: "A", ColAlt: "C"},
	}
	SortByGenomicKey(rows)

	var got [][2]string
	for _, r := range rows {
		got = append(got, [2]string{Format(r[ColChrom]), Format(r[ColPos])})
	}
	want := [][2]string{
		{"2", "100"},    // ALT C before T
		{"chr2", "100"}, // chr prefix is ignored for ordering
		{"2", "300"},
		{"10", "1"}, // numeric, not lexical: 10 after 2
		{"X", "5"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sorted order = %v, want %v", got, want)
	}
}
