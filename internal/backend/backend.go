// Package backend executes compiled queries against the supported
// warehouse dialects and returns rows as column-keyed maps.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	"datachat/internal/domain"
)

// Router dispatches a compiled query to the backend matching its dialect.
// It implements domain.ExecutionBackend.
type Router struct {
	backends map[domain.Dialect]domain.ExecutionBackend
}

var _ domain.ExecutionBackend = (*Router)(nil)

// NewRouter builds a Router. Nil backends are simply not registered.
func NewRouter(oracle, sqlite domain.ExecutionBackend) *Router {
	backends := make(map[domain.Dialect]domain.ExecutionBackend, 2)
	if oracle != nil {
		backends[domain.DialectOracle] = oracle
	}
	if sqlite != nil {
		backends[domain.DialectSQLite] = sqlite
	}
	return &Router{backends: backends}
}

func (r *Router) Execute(ctx context.Context, query *domain.CompiledQuery) ([]string, []domain.Row, error) {
	dialect := query.Dialect
	if dialect == "" {
		dialect = domain.DialectOracle
	}
	b, ok := r.backends[dialect]
	if !ok {
		return nil, nil, fmt.Errorf("no execution backend for dialect %q", dialect)
	}
	return b.Execute(ctx, query)
}

// scanRowMaps drains rows into column-keyed maps, converting byte slices
// to strings so results serialize cleanly.
func scanRowMaps(rows *sql.Rows) ([]string, []domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []domain.Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(domain.Row, len(cols))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[cols[i]] = string(b)
			} else {
				row[cols[i]] = v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}
