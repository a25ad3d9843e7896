// Package config defines the explicit configuration object passed into each
// pipeline component. It is decoded from a YAML file; nothing in the rest of
// the program reads ambient configuration state.
//
// Example (trimmed):
//
//	filters:
//	  "ANN['MAX_AF']": "<=:0.01"
//	  "ANN['IMPACT']": "in:HIGH,MODERATE"
//	drop_columns:
//	  - "INFO['CSQ']"
//	pivot:
//	  quarantine: true
//	merge:
//	  mode: curated
//	  row_count_cutoff: 2
//	  workers: 4
//	additional_filtering:
//	  gene_filter: data/external/genes.xlsx
//	  bed_file: data/external/panel.bed
//	  output_dir: data/additional_filtering
//	storage:
//	  driver: sqlite
//	  dsn: data/varpivot.db
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"varpivot/internal/rowfilter"
)

// Config is the top-level configuration object.
type Config struct {
	// Filters maps column name -> "operator:value".
	Filters map[string]string `yaml:"filters"`

	// DropColumns are removed from every table before the pivot.
	DropColumns []string `yaml:"drop_columns"`

	Pivot      PivotConfig      `yaml:"pivot"`
	Merge      MergeConfig      `yaml:"merge"`
	Additional AdditionalConfig `yaml:"additional_filtering"`
	Storage    StorageConfig    `yaml:"storage"`
}

// PivotConfig configures the intra-file pivot engine.
type PivotConfig struct {
	// IdentityColumns override the default pivot key when non-empty.
	IdentityColumns []string `yaml:"identity_columns"`

	// Quarantine diverts uniqueness violations to a separate output instead
	// of failing the run.
	Quarantine bool `yaml:"quarantine"`
}

// MergeConfig configures the cross-file merge engine.
type MergeConfig struct {
	Mode           string `yaml:"mode"` // curated (default), all, minimal
	RowCountCutoff int    `yaml:"row_count_cutoff"`
	Workers        int    `yaml:"workers"`
	Occurrence     bool   `yaml:"occurrence"`
}

// AdditionalConfig configures the standalone identity-filter pass.
type AdditionalConfig struct {
	GeneFilter       string   `yaml:"gene_filter"`
	BedFile          string   `yaml:"bed_file"`
	OutputDir        string   `yaml:"output_dir"`
	DropColumns      []string `yaml:"drop_columns"`
	ColumnOrderStart []string `yaml:"column_order_start"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// Load reads and decodes a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

// Predicates converts the filter section into row filter predicates. Each
// entry is "operator:value"; values are sniffed into int/float/bool and the
// set operators split their value on commas.
func (c *Config) Predicates() ([]rowfilter.Predicate, error) {
	cols := make([]string, 0, len(c.Filters))
	for col := range c.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	var out []rowfilter.Predicate
	for _, col := range cols {
		spec := c.Filters[col]
		op, rawVal, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("config: filter for %q must look like \"operator:value\", got %q", col, spec)
		}
		op = strings.TrimSpace(op)
		var value any
		switch op {
		case rowfilter.OpIn, rowfilter.OpNotIn:
			var list []any
			for _, part := range strings.Split(rawVal, ",") {
				list = append(list, sniffValue(strings.TrimSpace(part)))
			}
			value = list
		default:
			value = sniffValue(strings.TrimSpace(rawVal))
		}
		out = append(out, rowfilter.Predicate{Column: col, Operator: op, Value: value})
	}
	return out, nil
}

// sniffValue types a raw config string: int, then float, then bool, then
// string.
func sniffValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
