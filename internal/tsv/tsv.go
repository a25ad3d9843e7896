// Package tsv reads and writes the flat delimited form of variant tables.
// Reading sniffs cell types (int, float, bool, string) so that numeric
// columns come back numeric; missing markers read as nil and write back as
// ".", matching the files the annotation toolchain produces.
package tsv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"varpivot/internal/table"
)

const utf8BOM = "\uFEFF"

// Read loads a tab-separated file into a table. The first line is the
// header; a UTF-8 BOM on the first cell is stripped.
func Read(path string) (*table.Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tsv: open %s: %w", path, err)
	}
	defer fh.Close()
	t, err := ReadFrom(fh)
	if err != nil {
		return nil, fmt.Errorf("tsv: read %s: %w", path, err)
	}
	t.SetAttr("original_file", path)
	return t, nil
}

// ReadFrom parses tab-separated content from r.
func ReadFrom(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := table.New(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(table.Row, len(header))
		for i, col := range header {
			if i >= len(rec) {
				row[col] = nil
				continue
			}
			row[col] = sniffCell(rec[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// sniffCell types one raw cell. Missing markers become nil; integers and
// floats parse to their Go types; everything else stays a string. Booleans
// are deliberately not sniffed here since "True"/"False" gene names exist.
func sniffCell(s string) any {
	if table.IsMissing(s) {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// WriteOptions tune the export layout.
type WriteOptions struct {
	// PriorityColumns, when set, lead the output in the given order; every
	// remaining column follows alphabetically. Without priorities the
	// table's own column order is kept.
	PriorityColumns []string
}

// Write exports a table as tab-separated text with "." for missing cells.
func Write(path string, t *table.Table, opts WriteOptions) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tsv: create %s: %w", path, err)
	}
	defer fh.Close()
	if err := WriteTo(fh, t, opts); err != nil {
		return fmt.Errorf("tsv: write %s: %w", path, err)
	}
	return nil
}

// WriteTo writes tab-separated content to w.
func WriteTo(w io.Writer, t *table.Table, opts WriteOptions) error {
	cols := orderColumns(t.Columns, opts.PriorityColumns)
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(cols); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for _, r := range t.Rows {
		for i, c := range cols {
			v := r[c]
			if v == nil {
				rec[i] = "."
				continue
			}
			rec[i] = table.Format(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func orderColumns(cols, priority []string) []string {
	if len(priority) == 0 {
		return cols
	}
	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[c] = struct{}{}
	}
	var out []string
	used := map[string]struct{}{}
	for _, p := range priority {
		if _, ok := have[p]; ok {
			out = append(out, p)
			used[p] = struct{}{}
		}
	}
	var rest []string
	for _, c := range cols {
		if _, ok := used[c]; !ok {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
