package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CategoryCatalogImpl resolves category names from PostgreSQL.
type CategoryCatalogImpl struct {
	pool *pgxpool.Pool
}

// NewCategoryCatalogImpl creates a new CategoryCatalog implementation.
func NewCategoryCatalogImpl(pool *pgxpool.Pool) CategoryCatalog {
	return &CategoryCatalogImpl{pool: pool}
}

// Names returns display names for the given category ids. Unknown ids
// are simply absent from the result map.
func (c *CategoryCatalogImpl) Names(ctx context.Context, categoryIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(categoryIDs))
	if len(categoryIDs) == 0 {
		return names, nil
	}

	const sql = `SELECT id, name FROM categories WHERE id = ANY($1)`

	rows, err := queryTarget(ctx, c.pool).Query(ctx, sql, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query category names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)

		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan category name: %w", err)
		}

		names[id] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category names: %w", err)
	}

	return names, nil
}
