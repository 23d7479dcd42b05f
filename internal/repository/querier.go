package repository

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repository methods take a Querier so the same query can run standalone
// (advisory reads such as the public quote) or inside a handler-owned
// transaction (the authoritative re-check before a write).  Methods whose
// correctness depends on transactional locking take *sql.Tx explicitly.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
