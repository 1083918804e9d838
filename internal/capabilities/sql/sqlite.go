package sql

import (
	"context"
	"database/sql"
	"fmt"

	// modernc.org/sqlite registers the "sqlite" driver; pure Go, matching
	// spec.md §6's file::memory:?cache=shared default.
	_ "modernc.org/sqlite"
)

// sqlBackend adapts a database/sql.DB to the Connection interface shared
// by every SQL driver this capability supports.
type sqlBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens dsn (spec.md §6's SQL_DATABASE) through the
// modernc.org/sqlite pure-Go driver — the default backend per spec.md's
// SQL_DATABASE default of "file::memory:?cache=shared".
func NewSQLiteBackend(dsn string) (Connection, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: opening sqlite %q: %w", dsn, err)
	}
	return &sqlBackend{db: db}, nil
}

func (b *sqlBackend) Query(ctx context.Context, query string, params []Value) (*Rows, error) {
	rows, err := b.db.QueryContext(ctx, query, toDriverArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("sql: query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (b *sqlBackend) Exec(ctx context.Context, query string, params []Value) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, toDriverArgs(params)...)
	if err != nil {
		return 0, fmt.Errorf("sql: exec: %w", err)
	}
	return res.RowsAffected()
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func scanRows(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Rows{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sql: scanning row: %w", err)
		}
		result.Values = append(result.Values, raw)
	}
	return result, rows.Err()
}
