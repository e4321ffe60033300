package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
	"github.com/merchkit/sales-pipeline/internal/repository"
)

// OrderServiceImpl implements OrderService for order intake. The order,
// its items, and the outbox event feeding the delivery pipeline commit
// in one transaction; the external order id gives the endpoint itself
// retry-safe idempotency.
type OrderServiceImpl struct {
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	txManager  repository.TransactionManager
}

// NewOrderServiceImpl creates a new OrderService implementation.
func NewOrderServiceImpl(
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	txManager repository.TransactionManager,
) OrderService {
	return &OrderServiceImpl{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
	}
}

// CreateOrder validates and persists an order together with its outbox
// event. A repeated external order id returns the existing order
// unchanged instead of creating a duplicate.
func (s *OrderServiceImpl) CreateOrder(
	ctx context.Context, params *model.CreateOrderParams,
) (*model.CreateOrderResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if params.ExternalOrderID == "" {
		params.ExternalOrderID = uuid.NewString()
	}

	existing, err := s.orderRepo.GetByExternalID(ctx, params.ExternalOrderID)
	if err != nil && !errors.Is(err, model.ErrOrderNotFound) {
		return nil, fmt.Errorf("failed to check for existing order: %w", err)
	}

	if existing != nil {
		return s.skipExisting(ctx, existing)
	}

	items, total := buildItems(params.Items)

	var created *model.Order

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orderRepo.Create(ctx, &model.Order{
			ExternalOrderID: params.ExternalOrderID,
			MerchantID:      params.MerchantID,
			OrderDate:       params.OrderDate,
			TotalAmount:     total,
		}, items)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		created = order

		return s.appendOutboxEvent(ctx, order, items)
	})
	if err != nil {
		// A concurrent request with the same external id can slip past
		// the lookup above; the loser of that race hits the unique
		// constraint and resolves to the winner's order.
		if errors.Is(err, model.ErrDuplicateOrder) {
			winner, lookupErr := s.orderRepo.GetByExternalID(ctx, params.ExternalOrderID)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to resolve duplicate order: %w", lookupErr)
			}

			return s.skipExisting(ctx, winner)
		}

		return nil, err
	}

	return &model.CreateOrderResult{
		OrderID:         created.ID,
		ExternalOrderID: created.ExternalOrderID,
		MerchantID:      created.MerchantID,
		TotalAmount:     created.TotalAmount,
		ItemCount:       len(items),
		Status:          model.OrderStatusCreated,
	}, nil
}

func (s *OrderServiceImpl) skipExisting(
	ctx context.Context, existing *model.Order,
) (*model.CreateOrderResult, error) {
	itemCount, err := s.orderRepo.CountItems(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count existing order items: %w", err)
	}

	slog.Info("order already exists, skipping creation",
		slog.String("external_order_id", existing.ExternalOrderID),
		slog.Int64("order_id", existing.ID),
	)

	return &model.CreateOrderResult{
		OrderID:         existing.ID,
		ExternalOrderID: existing.ExternalOrderID,
		MerchantID:      existing.MerchantID,
		TotalAmount:     existing.TotalAmount,
		ItemCount:       itemCount,
		Status:          model.OrderStatusSkipped,
	}, nil
}

// buildItems computes line amounts (unit price times quantity, exact
// decimal) and the order total.
func buildItems(requested []model.CreateOrderItemParams) ([]model.OrderItem, money.Amount) {
	items := make([]model.OrderItem, len(requested))

	var total money.Amount

	for i, req := range requested {
		lineAmount := req.UnitPrice.MulInt64(req.Quantity)
		total = total.Add(lineAmount)

		items[i] = model.OrderItem{
			ProductID:  req.ProductID,
			CategoryID: req.CategoryID,
			Quantity:   req.Quantity,
			UnitPrice:  req.UnitPrice,
			LineAmount: lineAmount,
		}
	}

	return items, total
}

func (s *OrderServiceImpl) appendOutboxEvent(
	ctx context.Context, order *model.Order, items []model.OrderItem,
) error {
	eventItems := make([]model.OrderEventItem, len(items))
	for i, item := range items {
		eventItems[i] = model.OrderEventItem{
			CategoryID: item.CategoryID,
			Quantity:   item.Quantity,
			LineAmount: item.LineAmount,
		}
	}

	payload, err := json.Marshal(model.OrderPlacedEvent{
		OrderID:    order.ID,
		MerchantID: order.MerchantID,
		OrderDate:  order.OrderDate,
		Items:      eventItems,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = s.outboxRepo.Append(ctx, &model.CreateOutboxEventParams{
		OrderID:    order.ID,
		MerchantID: order.MerchantID,
		EventKind:  model.EventKindOrderPlaced,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}

	return nil
}
