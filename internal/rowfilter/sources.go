package rowfilter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"

	"varpivot/internal/table"
)

var fold = cases.Fold()

// Header spellings accepted in gene filter files.
var (
	symbolHeaders = []string{"symbol", "gene symbol", "gene_symbol"}
	rsidHeaders   = []string{"rsid", "rs_id", "rs id", "rsid_paper"}
)

const utf8BOM = "\uFEFF"

// LoadGeneFilter reads gene symbols and rsIDs from a delimited or spreadsheet
// file into the filter. The file must carry at least one of the recognized
// Symbol or rsID headers. rsID values that do not start with "rs" are
// dropped; blanks are dropped everywhere.
func LoadGeneFilter(f *IdentityFilter, path string) error {
	rows, err := readCells(path)
	if err != nil {
		return fmt.Errorf("rowfilter: gene filter %s: %w", path, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("rowfilter: gene filter %s: file is empty", path)
	}
	header := stripBOM(rows[0])

	symbolIdx := findHeader(header, symbolHeaders)
	rsidIdx := findHeader(header, rsidHeaders)
	if symbolIdx < 0 && rsidIdx < 0 {
		return fmt.Errorf(
			"rowfilter: gene filter %s: need a Symbol or rsID column, found %v",
			path, header)
	}

	if f.Symbols == nil {
		f.Symbols = map[string]struct{}{}
	}
	if f.RsIDs == nil {
		f.RsIDs = map[string]struct{}{}
	}
	for _, row := range rows[1:] {
		if symbolIdx >= 0 && symbolIdx < len(row) {
			if s := strings.TrimSpace(row[symbolIdx]); s != "" && !table.IsMissing(s) {
				f.Symbols[s] = struct{}{}
			}
		}
		if rsidIdx >= 0 && rsidIdx < len(row) {
			if s := strings.TrimSpace(row[rsidIdx]); strings.HasPrefix(s, "rs") {
				f.RsIDs[s] = struct{}{}
			}
		}
	}
	return nil
}

// LoadBED reads 3+ column interval records (chromosome, start, end) into the
// filter. Extra columns are ignored, comment and header-ish lines skipped.
func LoadBED(f *IdentityFilter, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rowfilter: bed file %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	loaded := 0
	for i, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(line, utf8BOM))
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return fmt.Errorf("rowfilter: bed file %s line %d: need at least 3 columns (chr, start, end)", path, i+1)
		}
		start, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return fmt.Errorf("rowfilter: bed file %s line %d: bad start %q", path, i+1, fields[1])
		}
		end, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return fmt.Errorf("rowfilter: bed file %s line %d: bad end %q", path, i+1, fields[2])
		}
		f.AddRegion(fields[0], start, end)
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("rowfilter: bed file %s: no regions loaded", path)
	}
	return nil
}

// readCells loads the file into rows of cells, dispatching on extension:
// .xlsx/.xls via the spreadsheet reader, .csv comma-delimited, anything else
// tab-delimited.
func readCells(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		wb, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer wb.Close()
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		return wb.GetRows(sheets[0])
	case ".csv":
		return readDelimited(path, ',')
	default:
		return readDelimited(path, '\t')
	}
}

func readDelimited(path string, comma rune) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	r := csv.NewReader(fh)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return header
}

func findHeader(header []string, accepted []string) int {
	for i, h := range header {
		hf := fold.String(strings.TrimSpace(h))
		for _, a := range accepted {
			if hf == a {
				return i
			}
		}
	}
	return -1
}
