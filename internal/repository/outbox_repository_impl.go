package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchkit/sales-pipeline/internal/model"
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{pool: pool}
}

// Append stores a new outbox event. Called inside the intake transaction
// so the event commits atomically with the order it describes.
func (r *OutboxRepositoryImpl) Append(
	ctx context.Context, params *model.CreateOutboxEventParams,
) (*model.OutboxEvent, error) {
	const sql = `
		INSERT INTO outbox_events (order_id, merchant_id, event_kind, payload, created_at, delivered)
		VALUES ($1, $2, $3, $4, now(), false)
		RETURNING id, order_id, merchant_id, event_kind, payload, created_at, delivered, delivered_at`

	event := &model.OutboxEvent{}

	row := queryTarget(ctx, r.pool).QueryRow(ctx, sql,
		params.OrderID, params.MerchantID, string(params.EventKind), params.Payload)
	if err := row.Scan(
		&event.ID, &event.OrderID, &event.MerchantID, &event.EventKind,
		&event.Payload, &event.CreatedAt, &event.Delivered, &event.DeliveredAt,
	); err != nil {
		return nil, fmt.Errorf("failed to append outbox event: %w", err)
	}

	return event, nil
}

// ListUndelivered retrieves up to limit undelivered events, oldest first.
// FIFO by creation order is the publisher's ordering contract.
func (r *OutboxRepositoryImpl) ListUndelivered(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	const sql = `
		SELECT id, order_id, merchant_id, event_kind, payload, created_at, delivered, delivered_at
		FROM outbox_events
		WHERE delivered = false
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	rows, err := queryTarget(ctx, r.pool).Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered events: %w", err)
	}
	defer rows.Close()

	var events []*model.OutboxEvent

	for rows.Next() {
		event := &model.OutboxEvent{}
		if err := rows.Scan(
			&event.ID, &event.OrderID, &event.MerchantID, &event.EventKind,
			&event.Payload, &event.CreatedAt, &event.Delivered, &event.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}

	return events, nil
}

// MarkDelivered records broker acknowledgment for one event.
func (r *OutboxRepositoryImpl) MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time) error {
	const sql = `
		UPDATE outbox_events
		SET delivered = true, delivered_at = $2
		WHERE id = $1`

	if _, err := queryTarget(ctx, r.pool).Exec(ctx, sql, id, deliveredAt); err != nil {
		return fmt.Errorf("failed to mark event %d delivered: %w", id, err)
	}

	return nil
}
