package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"varpivot/internal/rowfilter"
)

const sampleYAML = `
filters:
  "INFO['gnomADg_AF']": "<=:0.01"
  "FILTER": "==:PASS"
  "ANN['IMPACT']": "in:HIGH,MODERATE"
drop_columns:
  - "INFO['CSQ']"
pivot:
  quarantine: true
merge:
  mode: curated
  row_count_cutoff: 2
  workers: 4
  occurrence: true
additional_filtering:
  gene_filter: genes.xlsx
  bed_file: panel.bed
  output_dir: out
storage:
  driver: sqlite
  dsn: results.db
  table: merged
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Pivot.Quarantine {
		t.Error("pivot.quarantine not parsed")
	}
	if cfg.Merge.RowCountCutoff != 2 || cfg.Merge.Workers != 4 || !cfg.Merge.Occurrence {
		t.Errorf("merge section = %+v", cfg.Merge)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "results.db" {
		t.Errorf("storage section = %+v", cfg.Storage)
	}
	if cfg.Additional.GeneFilter != "genes.xlsx" || cfg.Additional.BedFile != "panel.bed" {
		t.Errorf("additional section = %+v", cfg.Additional)
	}
	if !reflect.DeepEqual(cfg.DropColumns, []string{"INFO['CSQ']"}) {
		t.Errorf("drop_columns = %v", cfg.DropColumns)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPredicates(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	preds, err := cfg.Predicates()
	if err != nil {
		t.Fatal(err)
	}
	// Deterministic order: sorted by column name.
	want := []rowfilter.Predicate{
		{Column: "ANN['IMPACT']", Operator: rowfilter.OpIn, Value: []any{"HIGH", "MODERATE"}},
		{Column: "FILTER", Operator: rowfilter.OpEq, Value: "PASS"},
		{Column: "INFO['gnomADg_AF']", Operator: rowfilter.OpLe, Value: 0.01},
	}
	if !reflect.DeepEqual(preds, want) {
		t.Fatalf("predicates = %#v, want %#v", preds, want)
	}
}

func TestPredicatesValueSniffing(t *testing.T) {
	cfg := &Config{Filters: map[string]string{
		"a": "==:42",
		"b": "==:0.5",
		"c": "==:true",
		"d": "==:PASS",
	}}
	preds, err := cfg.Predicates()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]any{}
	for _, p := range preds {
		got[p.Column] = p.Value
	}
	want := map[string]any{"a": int64(42), "b": 0.5, "c": true, "d": "PASS"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sniffed values = %#v, want %#v", got, want)
	}
}

func TestPredicatesBadSpec(t *testing.T) {
	cfg := &Config{Filters: map[string]string{"a": "no-colon"}}
	if _, err := cfg.Predicates(); err == nil {
		t.Fatal("expected error for a spec without operator:value shape")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"clean", func(c *Config) {}, false},
		{"bad operator", func(c *Config) { c.Filters = map[string]string{"x": "~=:1"} }, true},
		{"bad filter shape", func(c *Config) { c.Filters = map[string]string{"x": "oops"} }, true},
		{"bad mode", func(c *Config) { c.Merge.Mode = "everything" }, true},
		{"negative cutoff", func(c *Config) { c.Merge.RowCountCutoff = -1 }, true},
		{"cutoff of one", func(c *Config) { c.Merge.RowCountCutoff = 1 }, true},
		{"bad driver", func(c *Config) { c.Storage.Driver = "oracle" }, true},
		{"driver without dsn", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.DSN = "" }, true},
		{"valid cutoff", func(c *Config) { c.Merge.RowCountCutoff = 3 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = FirstError(Validate(cfg))
			if tt.wantError && err == nil {
				t.Fatal("expected a validation error")
			}
			if !tt.wantError && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateWarnsOnNoOpFilterPass(t *testing.T) {
	issues := Validate(&Config{})
	found := false
	for _, iss := range issues {
		if iss.Severity == SeverityWarning && iss.Path == "additional_filtering" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a warning for an empty additional_filtering section")
	}
	if err := FirstError(issues); err != nil {
		t.Fatalf("warnings must not be fatal: %v", err)
	}
}
