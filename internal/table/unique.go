package table

import (
	"fmt"
	"strings"
)

// Violation is one key that maps to more than one row. Key holds the display
// form for error messages; Raw holds the exact KeyString encoding, which
// keeps nil cells distinct from empty strings when callers match rows
// against a violation.
type Violation struct {
	Key   map[string]string // key column -> value, display form
	Raw   string            // KeyString of the group
	Count int               // number of rows sharing the key
}

func (v Violation) describe(cols []string) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s=%s", c, v.Key[c]))
	}
	return fmt.Sprintf("%s (%d rows)", strings.Join(parts, " "), v.Count)
}

// KeyViolationError reports duplicate keys found where uniqueness was
// required. The error message previews a bounded number of keys and names
// the total, so logs stay readable when thousands of keys collide.
type KeyViolationError struct {
	Stage      string // which check failed, e.g. "pivot" or "merge input"
	KeyColumns []string
	Violations []Violation
	TotalRows  int // rows participating in violating keys
}

// PreviewLimit is how many violating keys an error message enumerates.
const PreviewLimit = 10

func (e *KeyViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d key combination(s) map to multiple rows (%d rows affected, key: %s)",
		e.Stage, len(e.Violations), e.TotalRows, strings.Join(e.KeyColumns, ","))
	n := len(e.Violations)
	if n > PreviewLimit {
		n = PreviewLimit
	}
	for _, v := range e.Violations[:n] {
		b.WriteString("\n  - ")
		b.WriteString(v.describe(e.KeyColumns))
	}
	if rest := len(e.Violations) - n; rest > 0 {
		fmt.Fprintf(&b, "\n  ... and %d more", rest)
	}
	return b.String()
}

// FindDuplicates groups rows by the named key columns and returns every key
// claimed by more than one row, in first-seen order. A nil return means the
// uniqueness invariant holds.
func FindDuplicates(rows []Row, keyCols []string) []Violation {
	type group struct {
		first Row
		count int
	}
	counts := map[string]*group{}
	var order []string
	for _, r := range rows {
		k := KeyString(r, keyCols)
		g, ok := counts[k]
		if !ok {
			counts[k] = &group{first: r, count: 1}
			order = append(order, k)
			continue
		}
		g.count++
	}
	var out []Violation
	for _, k := range order {
		g := counts[k]
		if g.count < 2 {
			continue
		}
		key := make(map[string]string, len(keyCols))
		for _, c := range keyCols {
			key[c] = Format(g.first[c])
		}
		out = append(out, Violation{Key: key, Raw: k, Count: g.count})
	}
	return out
}

// CheckUnique wraps FindDuplicates in a KeyViolationError, or nil when the
// invariant holds.
func CheckUnique(stage string, rows []Row, keyCols []string) *KeyViolationError {
	viol := FindDuplicates(rows, keyCols)
	if len(viol) == 0 {
		return nil
	}
	total := 0
	for _, v := range viol {
		total += v.Count
	}
	return &KeyViolationError{Stage: stage, KeyColumns: keyCols, Violations: viol, TotalRows: total}
}
