// Package repository implements the pipeline's persistence ports over the
// SQLite metadata database.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"datachat/internal/domain"
)

// CatalogRepo stores the authorized-table catalog. It implements
// domain.TableCatalog.
type CatalogRepo struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

var _ domain.TableCatalog = (*CatalogRepo)(nil)

func NewCatalogRepo(readDB, writeDB *sql.DB) *CatalogRepo {
	return &CatalogRepo{readDB: readDB, writeDB: writeDB}
}

// ListTables returns every authorized table with its ordered column list.
func (r *CatalogRepo) ListTables(ctx context.Context) ([]domain.TableDescriptor, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT id, name, schema_name, description, keywords
		FROM catalog_tables
		ORDER BY schema_name, name`)
	if err != nil {
		return nil, fmt.Errorf("list catalog tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.TableDescriptor
	ids := []int64{}
	for rows.Next() {
		var (
			id       int64
			t        domain.TableDescriptor
			keywords string
		)
		if err := rows.Scan(&id, &t.Name, &t.Schema, &t.Description, &keywords); err != nil {
			return nil, fmt.Errorf("scan catalog table: %w", err)
		}
		t.Keywords = splitKeywords(keywords)
		tables = append(tables, t)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog tables: %w", err)
	}

	for i, id := range ids {
		columns, err := r.listColumns(ctx, id)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = columns
	}
	return tables, nil
}

func (r *CatalogRepo) listColumns(ctx context.Context, tableID int64) ([]domain.Column, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT name, type, nullable, comment, primary_key
		FROM catalog_columns
		WHERE table_id = ?
		ORDER BY position`, tableID)
	if err != nil {
		return nil, fmt.Errorf("list catalog columns: %w", err)
	}
	defer rows.Close()

	var columns []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Comment, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan catalog column: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// RegisterTable inserts or replaces a table descriptor and its columns.
func (r *CatalogRepo) RegisterTable(ctx context.Context, t *domain.TableDescriptor) error {
	if strings.TrimSpace(t.Name) == "" {
		return domain.ErrValidation("table name is required")
	}

	tx, err := r.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register table: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_tables (name, schema_name, description, keywords)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (schema_name, name) DO UPDATE SET
			description = excluded.description,
			keywords = excluded.keywords`,
		t.Name, t.Schema, t.Description, strings.Join(t.Keywords, ",")); err != nil {
		return fmt.Errorf("upsert catalog table: %w", err)
	}

	// last_insert_rowid is unreliable on conflict-update; resolve explicitly.
	var tableID int64
	row := tx.QueryRowContext(ctx,
		`SELECT id FROM catalog_tables WHERE schema_name = ? AND name = ?`, t.Schema, t.Name)
	if err := row.Scan(&tableID); err != nil {
		return fmt.Errorf("resolve catalog table id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_columns WHERE table_id = ?`, tableID); err != nil {
		return fmt.Errorf("clear catalog columns: %w", err)
	}
	for i, c := range t.Columns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_columns (table_id, position, name, type, nullable, comment, primary_key)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tableID, i, c.Name, c.Type, c.Nullable, c.Comment, c.PrimaryKey); err != nil {
			return fmt.Errorf("insert catalog column %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
