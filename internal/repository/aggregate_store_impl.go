package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
)

// AggregateStoreImpl is the authoritative aggregate store on PostgreSQL.
// It implements both the additive-upsert write path and the ranked read
// path (exact-bucket lookups and custom DAY ranges).
type AggregateStoreImpl struct {
	pool *pgxpool.Pool
}

// NewAggregateStoreImpl creates the authoritative AggregateStore implementation.
func NewAggregateStoreImpl(pool *pgxpool.Pool) *AggregateStoreImpl {
	return &AggregateStoreImpl{pool: pool}
}

// UpsertAdditive applies each delta as an atomic insert-or-add. Existing
// totals are incremented, never overwritten, so concurrent writers and
// replayed non-duplicate batches accumulate correctly.
func (s *AggregateStoreImpl) UpsertAdditive(
	ctx context.Context, bucketType model.BucketType, rows []model.UpsertRow,
) error {
	if len(rows) == 0 {
		return nil
	}

	const sql = `
		INSERT INTO category_sales_agg
			(merchant_id, category_id, bucket_type, bucket_start, bucket_end,
			 total_sales_amount, total_units_sold, order_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, now())
		ON CONFLICT (merchant_id, category_id, bucket_type, bucket_start)
		DO UPDATE SET
			total_sales_amount = category_sales_agg.total_sales_amount + EXCLUDED.total_sales_amount,
			total_units_sold   = category_sales_agg.total_units_sold + EXCLUDED.total_units_sold,
			order_count        = category_sales_agg.order_count + EXCLUDED.order_count,
			updated_at         = now()`

	q := queryTarget(ctx, s.pool)

	for _, row := range rows {
		if _, err := q.Exec(ctx, sql,
			row.MerchantID, row.CategoryID, string(bucketType),
			row.BucketStart, row.BucketEnd,
			row.AmountDelta.String(), row.UnitsDelta, row.OrderCountDelta,
		); err != nil {
			return fmt.Errorf("failed to upsert %s aggregate for category %d: %w",
				bucketType, row.CategoryID, err)
		}
	}

	return nil
}

// TopCategories returns the top categories by total sales amount. An
// exact bucket lookup matches one bucket_start; a custom range sums DAY
// buckets whose start falls inside the range.
func (s *AggregateStoreImpl) TopCategories(
	ctx context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	if query.IsRange() {
		return s.topCategoriesRange(ctx, query)
	}

	const sql = `
		SELECT category_id, total_sales_amount::text, total_units_sold, order_count
		FROM category_sales_agg
		WHERE merchant_id = $1 AND bucket_type = $2 AND bucket_start = $3
		ORDER BY total_sales_amount DESC
		LIMIT $4`

	rows, err := queryTarget(ctx, s.pool).Query(ctx, sql,
		query.MerchantID, string(query.BucketType), query.BucketStart, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	return scanTopCategories(rows)
}

func (s *AggregateStoreImpl) topCategoriesRange(
	ctx context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	const sql = `
		SELECT category_id,
		       sum(total_sales_amount)::text,
		       sum(total_units_sold)::bigint,
		       sum(order_count)::bigint
		FROM category_sales_agg
		WHERE merchant_id = $1 AND bucket_type = $2
		  AND bucket_start >= $3 AND bucket_start <= $4
		GROUP BY category_id
		ORDER BY sum(total_sales_amount) DESC
		LIMIT $5`

	rows, err := queryTarget(ctx, s.pool).Query(ctx, sql,
		query.MerchantID, string(model.BucketDay),
		query.BucketStart, query.BucketEnd, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories for range: %w", err)
	}
	defer rows.Close()

	return scanTopCategories(rows)
}

func scanTopCategories(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.TopCategory, error) {
	var result []model.TopCategory

	for rows.Next() {
		var (
			row         model.TopCategory
			totalAmount string
		)

		if err := rows.Scan(&row.CategoryID, &totalAmount, &row.TotalUnitsSold, &row.OrderCount); err != nil {
			return nil, fmt.Errorf("failed to scan top category row: %w", err)
		}

		amount, err := money.Parse(totalAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse aggregate amount: %w", err)
		}

		row.TotalSalesAmount = amount

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top category rows: %w", err)
	}

	return result, nil
}
