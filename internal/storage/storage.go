// Package storage persists variant tables between pipeline stages. A Store
// saves and loads whole tables; the table's metadata attributes (original
// file, column order, processing counters) ride along in a sidecar
// key/value table so a reload reconstructs the exact in-memory form.
//
// Two backends exist: SQLite for single-machine runs and Postgres for
// shared environments. Callers go through Open and depend only on the Store
// interface.
package storage

import (
	"context"
	"fmt"

	"varpivot/internal/storage/postgres"
	"varpivot/internal/storage/sqlite"
	"varpivot/internal/table"
)

// Store saves and loads whole tables by name.
type Store interface {
	Save(ctx context.Context, name string, t *table.Table) error
	Load(ctx context.Context, name string) (*table.Table, error)
	Close() error
}

// Open constructs the backend selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return sqlite.Open(ctx, dsn)
	case "postgres":
		return postgres.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q (want sqlite or postgres)", driver)
	}
}
