// Package table defines the in-memory tabular model shared by every pipeline
// stage. A Row is a loosely typed mapping from column name to scalar value; a
// Table is an ordered set of columns plus the rows themselves and a free-form
// attribute bag that travels with the data (original file name, column order,
// processing counters).
//
// Value domain per cell:
//
//   - string, int64, float64, bool: plain scalars
//   - nil: missing
//   - []any: a list accumulated by a prior aggregation step
//
// Stages never mutate a Table they receive; each stage returns a new Table.
package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Canonical column names used across the pipeline. These match the headers
// produced by the upstream variant annotation step.
const (
	ColSample   = "SAMPLE"
	ColChrom    = "CHROM"
	ColPos      = "POS"
	ColRef      = "REF"
	ColAlt      = "ALT"
	ColID       = "ID"
	ColFamily   = "family"
	ColFilename = "FILENAME"
	ColRowCount = "ROW_COUNT"
)

// GenomicKey is the minimal cross-file identity of a variant.
var GenomicKey = []string{ColChrom, ColPos, ColRef, ColAlt}

// Row is one variant observation.
type Row map[string]any

// Clone returns a shallow copy of the row (cell values are scalars or shared
// slices; callers that rewrite list cells must replace, not append).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered collection of rows.
type Table struct {
	// Columns is the authoritative column order, used for display and export
	// only; lookups always go through the row maps.
	Columns []string

	Rows []Row

	// Attrs carries table-level metadata (original file, row counters,
	// processing type). Persisted alongside the data by the storage layer.
	Attrs map[string]string
}

// New returns an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...), Attrs: map[string]string{}}
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SetAttr records a metadata attribute, allocating the bag if needed.
func (t *Table) SetAttr(key, value string) {
	if t.Attrs == nil {
		t.Attrs = map[string]string{}
	}
	t.Attrs[key] = value
}

// AddColumn appends a column to the declared order if not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// DropColumns returns a new table without the named columns. Names that do
// not exist are ignored; the caller decides whether that deserves a warning.
func (t *Table) DropColumns(names []string) *Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := &Table{Attrs: cloneAttrs(t.Attrs)}
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			if _, ok := drop[k]; !ok {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

func cloneAttrs(a map[string]string) map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// missingStrings are the textual representations of "no value" found in
// annotated variant TSVs.
var missingStrings = map[string]struct{}{
	"": {}, ".": {}, "NA": {}, "NULL": {}, "null": {},
}

// IsMissing reports whether a cell value represents a missing observation.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		_, miss := missingStrings[s]
		return miss
	}
	return false
}

// Format renders a cell value the way the flat-file exporter does. Floats use
// the shortest representation that round-trips; lists join on ";".
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, Format(e))
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(t)
	}
}

// AsFloat attempts numeric interpretation of a cell value.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// keySep joins key fields; it cannot occur inside a cell value.
const keySep = '\x1f'

// KeyString concatenates the named columns of a row into a single group key.
// Absent and nil cells contribute a distinct sentinel so they key apart from
// genuinely empty strings.
func KeyString(r Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(keySep)
		}
		v, ok := r[c]
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(Format(v))
	}
	return b.String()
}

// Fingerprint hashes every cell of a row (in column order) into a stable
// 64-bit identity. Used to drop exact-duplicate rows in the quarantine path.
func Fingerprint(r Row, cols []string) uint64 {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(keySep)
		}
		b.WriteString(Format(r[c]))
	}
	return xxh3.HashString(b.String())
}

// UnionColumns merges the column orders of several tables, preserving
// first-seen order across inputs. Rows from tables lacking a column read as
// nil for it.
func UnionColumns(tables []*Table) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}

// SortByGenomicKey orders rows by chromosome (natural order: numeric
// chromosomes first, then X/Y/MT and anything else lexically), position,
// reference and alternate allele. Both engines sort their output so results
// do not depend on input row order.
func SortByGenomicKey(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareChrom(Format(a[ColChrom]), Format(b[ColChrom])); c != 0 {
			return c < 0
		}
		pa, _ := AsFloat(a[ColPos])
		pb, _ := AsFloat(b[ColPos])
		if pa != pb {
			return pa < pb
		}
		if ra, rb := Format(a[ColRef]), Format(b[ColRef]); ra != rb {
			return ra < rb
		}
		return Format(a[ColAlt]) < Format(b[ColAlt])
	})
}

func compareChrom(a, b string) int {
	na, aNum := chromRank(a)
	nb, bNum := chromRank(b)
	switch {
	case aNum && bNum:
		return na - nb
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func chromRank(c string) (int, bool) {
	c = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c)), "chr")
	n, err := strconv.Atoi(c)
	return n, err == nil
}
