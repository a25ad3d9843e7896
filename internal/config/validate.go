package config

import (
	"fmt"
	"strings"

	"varpivot/internal/rowfilter"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config (e.g. "merge.row_count_cutoff").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var knownOperators = map[string]struct{}{
	rowfilter.OpEq: {}, rowfilter.OpNe: {},
	rowfilter.OpLt: {}, rowfilter.OpLe: {}, rowfilter.OpGt: {}, rowfilter.OpGe: {},
	rowfilter.OpIn: {}, rowfilter.OpNotIn: {},
	rowfilter.OpContains: {}, rowfilter.OpNotContains: {},
}

var knownModes = map[string]struct{}{
	"": {}, "curated": {}, "all": {}, "minimal": {},
}

var knownDrivers = map[string]struct{}{
	"": {}, "sqlite": {}, "postgres": {},
}

// Validate statically lints the configuration. It does not mutate c; callers
// decide whether warnings are fatal. All checks run before any aggregation
// work so misconfiguration never wastes a long run.
func Validate(c *Config) []Issue {
	var issues []Issue

	for col, spec := range c.Filters {
		op, _, ok := strings.Cut(spec, ":")
		if !ok {
			issues = append(issues, Issue{SeverityError, "filters." + col,
				fmt.Sprintf("must look like \"operator:value\", got %q", spec)})
			continue
		}
		if _, known := knownOperators[strings.TrimSpace(op)]; !known {
			issues = append(issues, Issue{SeverityError, "filters." + col,
				fmt.Sprintf("unknown operator %q", strings.TrimSpace(op))})
		}
	}

	if _, ok := knownModes[c.Merge.Mode]; !ok {
		issues = append(issues, Issue{SeverityError, "merge.mode",
			fmt.Sprintf("must be one of curated, all, minimal; got %q", c.Merge.Mode)})
	}
	if c.Merge.RowCountCutoff < 0 {
		issues = append(issues, Issue{SeverityError, "merge.row_count_cutoff",
			"must not be negative"})
	} else if c.Merge.RowCountCutoff == 1 {
		issues = append(issues, Issue{SeverityError, "merge.row_count_cutoff",
			"cutoff 1 would drop every shared variant; minimum is 2"})
	}
	if c.Merge.Workers < 0 {
		issues = append(issues, Issue{SeverityWarning, "merge.workers",
			"negative worker count treated as sequential"})
	}

	if _, ok := knownDrivers[c.Storage.Driver]; !ok {
		issues = append(issues, Issue{SeverityError, "storage.driver",
			fmt.Sprintf("must be sqlite or postgres; got %q", c.Storage.Driver)})
	}
	if c.Storage.Driver != "" && strings.TrimSpace(c.Storage.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn",
			"required when a storage driver is configured"})
	}

	if c.Additional.GeneFilter == "" && c.Additional.BedFile == "" &&
		len(c.Additional.DropColumns) == 0 {
		issues = append(issues, Issue{SeverityWarning, "additional_filtering",
			"no gene filter, BED file, or drop columns configured; the filter pass will be a no-op"})
	}

	return issues
}

// FirstError returns the first error-severity issue as an error, or nil.
func FirstError(issues []Issue) error {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return iss
		}
	}
	return nil
}
