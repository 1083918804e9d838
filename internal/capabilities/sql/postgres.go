package sql

import (
	"database/sql"
	"fmt"

	// jackc/pgx/v5/stdlib registers the "pgx" database/sql driver, reusing
	// the same pgx dependency the teacher's vectorstore/pgvector.go already
	// carries (see SPEC_FULL.md's domain stack table).
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresBackend opens dsn through pgx's database/sql adapter, giving
// the SQL capability a second backend beyond the sqlite default.
func NewPostgresBackend(dsn string) (Connection, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: opening postgres %q: %w", dsn, err)
	}
	return &sqlBackend{db: db}, nil
}
