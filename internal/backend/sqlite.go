package backend

import (
	"context"
	"database/sql"
	"fmt"

	"datachat/internal/domain"
)

// SQLiteBackend runs compiled queries against the embedded-file warehouse
// dialect.
type SQLiteBackend struct {
	pool *sql.DB
}

var _ domain.ExecutionBackend = (*SQLiteBackend)(nil)

func NewSQLiteBackend(pool *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{pool: pool}
}

func (b *SQLiteBackend) Execute(ctx context.Context, query *domain.CompiledQuery) ([]string, []domain.Row, error) {
	rows, err := b.pool.QueryContext(ctx, query.SQL, query.Params...)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite execute: %w", err)
	}
	defer rows.Close()
	return scanRowMaps(rows)
}
