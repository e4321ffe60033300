package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
)

const uniqueViolationCode = "23505"

// OrderRepositoryImpl implements OrderRepository using PostgreSQL.
type OrderRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOrderRepositoryImpl creates a new OrderRepository implementation.
func NewOrderRepositoryImpl(pool *pgxpool.Pool) OrderRepository {
	return &OrderRepositoryImpl{pool: pool}
}

// Create persists an order and its items.
func (r *OrderRepositoryImpl) Create(
	ctx context.Context, order *model.Order, items []model.OrderItem,
) (*model.Order, error) {
	const orderSQL = `
		INSERT INTO orders (external_order_id, merchant_id, order_date, total_amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, now())
		RETURNING id, created_at`

	q := queryTarget(ctx, r.pool)

	created := *order

	row := q.QueryRow(ctx, orderSQL,
		order.ExternalOrderID, order.MerchantID, order.OrderDate, order.TotalAmount.String())
	if err := row.Scan(&created.ID, &created.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, model.ErrDuplicateOrder
		}

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	const itemSQL = `
		INSERT INTO order_items (order_id, product_id, category_id, quantity, unit_price, line_amount)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)`

	for _, item := range items {
		if _, err := q.Exec(ctx, itemSQL,
			created.ID, item.ProductID, item.CategoryID, item.Quantity,
			item.UnitPrice.String(), item.LineAmount.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return &created, nil
}

// GetByExternalID retrieves an order by its client-supplied idempotency key.
func (r *OrderRepositoryImpl) GetByExternalID(
	ctx context.Context, externalOrderID string,
) (*model.Order, error) {
	const sql = `
		SELECT id, external_order_id, merchant_id, order_date, total_amount::text, created_at
		FROM orders
		WHERE external_order_id = $1`

	order := &model.Order{}

	var totalAmount string

	row := queryTarget(ctx, r.pool).QueryRow(ctx, sql, externalOrderID)
	if err := row.Scan(
		&order.ID, &order.ExternalOrderID, &order.MerchantID,
		&order.OrderDate, &totalAmount, &order.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}

		return nil, fmt.Errorf("failed to get order by external id: %w", err)
	}

	amount, err := money.Parse(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order total: %w", err)
	}

	order.TotalAmount = amount

	return order, nil
}

// CountItems returns the number of items on an order.
func (r *OrderRepositoryImpl) CountItems(ctx context.Context, orderID int64) (int, error) {
	const sql = `SELECT count(*) FROM order_items WHERE order_id = $1`

	var count int
	if err := queryTarget(ctx, r.pool).QueryRow(ctx, sql, orderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count order items: %w", err)
	}

	return count, nil
}
