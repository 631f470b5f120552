package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

const eventTypeOrderPlaced = "order.placed"

// PlaceOrder converts the caller's cart into an immutable order. Stock
// reservation, order creation, cart clearing, and the outbox event are one
// all-or-nothing transaction; a failed reservation leaves no partial order
// and no decremented stock.
func (s *Service) PlaceOrder(ctx context.Context, accountID uuid.UUID, req PlaceOrderRequest, idempotencyKey string) (OrderView, error) {
	if err := req.ShippingAddress.Validate(); err != nil {
		return OrderView{}, err
	}
	if !req.PaymentMethod.Valid() {
		return OrderView{}, fmt.Errorf("%w: unsupported payment method", domain.ErrInvalidInput)
	}

	if idempotencyKey != "" {
		if err := s.idempotency.Reserve(ctx, idempotencyKey, hashRequest(req), s.nowFn().Add(s.cfg.IdempotencyKeyTTL)); err != nil {
			return OrderView{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
		}
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"account_id": accountID,
		"placed_at":  now,
	})

	order, err := s.orders.PlaceFromCartTx(ctx, ports.PlaceOrderParams{
		AccountID:       accountID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PlacedAt:        now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeOrderPlaced,
		PartitionKey: accountID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		return OrderView{}, err
	}

	res := toOrderView(order)
	if idempotencyKey != "" {
		responseBody, _ := json.Marshal(res)
		_ = s.idempotency.Complete(ctx, idempotencyKey, 201, responseBody, s.nowFn())
	}
	return res, nil
}

// GetOrder returns one of the caller's own orders.
func (s *Service) GetOrder(ctx context.Context, accountID, orderID uuid.UUID) (OrderView, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if order.AccountID != accountID {
		// Indistinguishable from a missing order to avoid leaking order ids.
		return OrderView{}, domain.ErrNotFound
	}
	return toOrderView(order), nil
}

// ListOrders pages the caller's own orders, newest first.
func (s *Service) ListOrders(ctx context.Context, accountID uuid.UUID, page, limit int) ([]OrderView, error) {
	page, limit = normalizePage(page, limit)
	orders, err := s.orders.ListByAccount(ctx, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return toOrderViews(orders), nil
}

// ListAllOrders pages every order; admin only, enforced at the HTTP layer.
func (s *Service) ListAllOrders(ctx context.Context, page, limit int) ([]OrderView, error) {
	page, limit = normalizePage(page, limit)
	orders, err := s.orders.ListAll(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return toOrderViews(orders), nil
}

// UpdateOrderStatus advances an order along the forward-only transition
// table. Cancelling restocks the order's items.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (OrderView, error) {
	if !next.Valid() {
		return OrderView{}, fmt.Errorf("%w: unknown order status %q", domain.ErrInvalidInput, next)
	}
	order, err := s.orders.UpdateStatusTx(ctx, orderID, next, s.nowFn())
	if err != nil {
		return OrderView{}, err
	}
	return toOrderView(order), nil
}

// UpdatePaymentStatus settles a pending payment; settled payments are final.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, next domain.PaymentStatus) (OrderView, error) {
	if !next.Valid() {
		return OrderView{}, fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidInput, next)
	}
	order, err := s.orders.UpdatePaymentStatusTx(ctx, orderID, next, s.nowFn())
	if err != nil {
		return OrderView{}, err
	}
	return toOrderView(order), nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func toOrderViews(orders []domain.Order) []OrderView {
	result := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderView(order))
	}
	return result
}
