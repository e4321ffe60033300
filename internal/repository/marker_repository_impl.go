package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkerRepositoryImpl implements MarkerRepository using PostgreSQL.
type MarkerRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewMarkerRepositoryImpl creates a new MarkerRepository implementation.
func NewMarkerRepositoryImpl(pool *pgxpool.Pool) MarkerRepository {
	return &MarkerRepositoryImpl{pool: pool}
}

// FindUnprocessed returns the subset of orderIDs with no marker yet,
// preserving input order. One round trip regardless of batch size.
func (r *MarkerRepositoryImpl) FindUnprocessed(ctx context.Context, orderIDs []int64) ([]int64, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	const sql = `SELECT order_id FROM processed_orders WHERE order_id = ANY($1)`

	rows, err := queryTarget(ctx, r.pool).Query(ctx, sql, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed orders: %w", err)
	}
	defer rows.Close()

	known := make(map[int64]struct{}, len(orderIDs))

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed order id: %w", err)
		}

		known[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read processed order ids: %w", err)
	}

	unprocessed := make([]int64, 0, len(orderIDs))

	for _, id := range orderIDs {
		if _, ok := known[id]; !ok {
			unprocessed = append(unprocessed, id)
		}
	}

	return unprocessed, nil
}

// Claim inserts markers for the given order ids. Already-claimed ids are
// ignored rather than treated as errors.
func (r *MarkerRepositoryImpl) Claim(ctx context.Context, orderIDs []int64, processedAt time.Time) error {
	if len(orderIDs) == 0 {
		return nil
	}

	const sql = `
		INSERT INTO processed_orders (order_id, processed_at)
		SELECT unnest($1::bigint[]), $2
		ON CONFLICT (order_id) DO NOTHING`

	if _, err := queryTarget(ctx, r.pool).Exec(ctx, sql, orderIDs, processedAt); err != nil {
		return fmt.Errorf("failed to claim order ids: %w", err)
	}

	return nil
}
