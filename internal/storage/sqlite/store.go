// Package sqlite implements table persistence on SQLite via database/sql.
// Saves run as batched INSERTs inside one transaction; SQLite has no bulk
// COPY primitive but a single transaction keeps the volume manageable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"varpivot/internal/storage/ddl"
	"varpivot/internal/table"
)

// Store is a SQLite-backed table store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Save replaces the named table and its attribute sidecar.
func (s *Store) Save(ctx context.Context, name string, t *table.Table) error {
	defs := ddl.Infer(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ddl.QuoteIdent(name)); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", name, err)
	}
	colDefs := make([]string, len(defs))
	for i, d := range defs {
		colDefs[i] = ddl.QuoteIdent(d.Name) + " " + d.SQLType
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", ddl.QuoteIdent(name), strings.Join(colDefs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", name, err)
	}

	placeholders := strings.TrimRight(strings.Repeat("?, ", len(t.Columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ddl.QuoteIdent(name), strings.Join(ddl.QuoteAll(t.Columns), ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()
	args := make([]any, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			args[i] = ddl.Value(r[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite: insert into %s: %w", name, err)
		}
	}

	if err := saveAttrs(ctx, tx, name, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func saveAttrs(ctx context.Context, tx *sql.Tx, name string, t *table.Table) error {
	attrs := name + "_attrs"
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ddl.QuoteIdent(attrs)); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", attrs, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (key TEXT PRIMARY KEY, value TEXT)", ddl.QuoteIdent(attrs))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", attrs, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?)", ddl.QuoteIdent(attrs))
	for k, v := range t.Attrs {
		if _, err := tx.ExecContext(ctx, insert, k, v); err != nil {
			return fmt.Errorf("sqlite: insert attr: %w", err)
		}
	}
	// Column order is an attribute too; it cannot be recovered from SQLite
	// schema reliably once readers start adding columns.
	if _, err := tx.ExecContext(ctx, insert, "column_order", strings.Join(t.Columns, "\t")); err != nil {
		return fmt.Errorf("sqlite: insert column order: %w", err)
	}
	return nil
}

// Load reads the named table back, restoring column order and attributes.
func (s *Store) Load(ctx context.Context, name string) (*table.Table, error) {
	t := table.New()
	if err := s.loadAttrs(ctx, name, t); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("sqlite: table %s has no recorded column order; was it saved by this store?", name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(ddl.QuoteAll(t.Columns), ", "), ddl.QuoteIdent(name))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		cells := make([]any, len(t.Columns))
		ptrs := make([]any, len(t.Columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", name, err)
		}
		row := make(table.Row, len(t.Columns))
		for i, c := range t.Columns {
			row[c] = normalize(cells[i])
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate %s: %w", name, err)
	}
	return t, nil
}

func (s *Store) loadAttrs(ctx context.Context, name string, t *table.Table) error {
	attrs := name + "_attrs"
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT key, value FROM %s", ddl.QuoteIdent(attrs)))
	if err != nil {
		return fmt.Errorf("sqlite: select %s: %w", attrs, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("sqlite: scan %s: %w", attrs, err)
		}
		if k == "column_order" {
			t.Columns = strings.Split(v, "\t")
			continue
		}
		t.SetAttr(k, v)
	}
	return rows.Err()
}

// normalize maps driver scan results back into the cell value domain.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
