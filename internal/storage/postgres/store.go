// Package postgres implements table persistence on PostgreSQL via pgx.
// Rows are loaded with COPY, which is the only sane way to move wide
// variant tables into postgres at volume.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"varpivot/internal/storage/ddl"
	"varpivot/internal/table"
)

// Store is a PostgreSQL-backed table store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the PostgreSQL server at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Save replaces the named table and its attribute sidecar.
func (s *Store) Save(ctx context.Context, name string, t *table.Table) error {
	defs := ddl.Infer(t)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ddl.QuoteIdent(name)); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", name, err)
	}
	colDefs := make([]string, len(defs))
	for i, d := range defs {
		colDefs[i] = ddl.QuoteIdent(d.Name) + " " + pgType(d.SQLType)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", ddl.QuoteIdent(name), strings.Join(colDefs, ", "))
	if _, err := tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("postgres: create %s: %w", name, err)
	}

	src := pgx.CopyFromSlice(len(t.Rows), func(i int) ([]any, error) {
		r := t.Rows[i]
		cells := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = ddl.Value(r[c])
		}
		return cells, nil
	})
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{name}, t.Columns, src); err != nil {
		return fmt.Errorf("postgres: copy into %s: %w", name, err)
	}

	if err := saveAttrs(ctx, tx, name, t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func saveAttrs(ctx context.Context, tx pgx.Tx, name string, t *table.Table) error {
	attrs := name + "_attrs"
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ddl.QuoteIdent(attrs)); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", attrs, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (key TEXT PRIMARY KEY, value TEXT)", ddl.QuoteIdent(attrs))
	if _, err := tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("postgres: create %s: %w", attrs, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (key, value) VALUES ($1, $2)", ddl.QuoteIdent(attrs))
	for k, v := range t.Attrs {
		if _, err := tx.Exec(ctx, insert, k, v); err != nil {
			return fmt.Errorf("postgres: insert attr: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, insert, "column_order", strings.Join(t.Columns, "\t")); err != nil {
		return fmt.Errorf("postgres: insert column order: %w", err)
	}
	return nil
}

// pgType maps the generic inferred SQL types onto postgres spellings.
func pgType(sqlType string) string {
	switch sqlType {
	case "INTEGER":
		return "BIGINT"
	case "REAL":
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// Load reads the named table back, restoring column order and attributes.
func (s *Store) Load(ctx context.Context, name string) (*table.Table, error) {
	t := table.New()
	if err := s.loadAttrs(ctx, name, t); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("postgres: table %s has no recorded column order; was it saved by this store?", name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(ddl.QuoteAll(t.Columns), ", "), ddl.QuoteIdent(name))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		cells, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", name, err)
		}
		row := make(table.Row, len(t.Columns))
		for i, c := range t.Columns {
			row[c] = normalize(cells[i])
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate %s: %w", name, err)
	}
	return t, nil
}

func (s *Store) loadAttrs(ctx context.Context, name string, t *table.Table) error {
	attrs := name + "_attrs"
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT key, value FROM %s", ddl.QuoteIdent(attrs)))
	if err != nil {
		return fmt.Errorf("postgres: select %s: %w", attrs, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("postgres: scan %s: %w", attrs, err)
		}
		if k == "column_order" {
			t.Columns = strings.Split(v, "\t")
			continue
		}
		t.SetAttr(k, v)
	}
	return rows.Err()
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
