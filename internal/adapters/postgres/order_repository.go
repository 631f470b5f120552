package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

type orderRepository struct {
	db *gorm.DB
}

// PlaceFromCartTx is the checkout transaction: reserve stock for every cart
// line, snapshot the order, clear the cart, and enqueue the outbox event. Any
// failure rolls the whole thing back, so stock is never decremented for an
// order that was not created.
func (r *orderRepository) PlaceFromCartTx(ctx context.Context, params ports.PlaceOrderParams, outboxEvent ports.OutboxEvent) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart cartModel
		if err := tx.Where("account_id = ?", params.AccountID).Take(&cart).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrEmptyCart
			}
			return err
		}

		var rows []cartLineRow
		if err := tx.Table("cart_items").
			Select("cart_items.product_id, products.name AS product_name, cart_items.quantity, cart_items.unit_price_cents, cart_items.added_at").
			Joins("JOIN products ON products.product_id = cart_items.product_id").
			Where("cart_items.cart_id = ?", cart.CartID).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return domain.ErrEmptyCart
		}

		// Reserving in ascending product-id order gives concurrent checkouts
		// a consistent lock order, which rules out deadlock between them.
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].ProductID.String() < rows[j].ProductID.String()
		})
		for _, row := range rows {
			if err := reserveStock(tx, row.ProductID, row.Quantity); err != nil {
				return err
			}
		}

		orderID := uuid.New()
		var total int64
		items := make([]orderItemModel, 0, len(rows))
		for _, row := range rows {
			total += row.UnitPriceCents * int64(row.Quantity)
			items = append(items, orderItemModel{
				OrderID:        orderID,
				ProductID:      row.ProductID,
				ProductName:    row.ProductName,
				Quantity:       row.Quantity,
				UnitPriceCents: row.UnitPriceCents,
			})
		}

		order := orderModel{
			OrderID:        orderID,
			AccountID:      params.AccountID,
			Status:         string(domain.OrderStatusPending),
			PaymentMethod:  string(params.PaymentMethod),
			PaymentStatus:  string(domain.PaymentStatusPending),
			TotalCents:     total,
			ShipAddress:    params.ShippingAddress.Address,
			ShipCity:       params.ShippingAddress.City,
			ShipPostalCode: params.ShippingAddress.PostalCode,
			ShipCountry:    params.ShippingAddress.Country,
			CreatedAt:      params.PlacedAt,
			UpdatedAt:      params.PlacedAt,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		if err := tx.Where("cart_id = ?", cart.CartID).Delete(&cartItemModel{}).Error; err != nil {
			return err
		}
		if err := touchCart(tx, cart.CartID, params.PlacedAt); err != nil {
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["order_id"] = orderID.String()
			payloadObj["total_cents"] = total
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}
		outbox := outboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: outboxEvent.PartitionKey,
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainOrder(order, items)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (r *orderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	db := r.db.WithContext(ctx)
	var rec orderModel
	if err := db.Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, err
	}
	items, err := loadOrderItems(db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(rec, items), nil
}

func (r *orderRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	var rows []orderModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.attachItems(ctx, rows)
}

func (r *orderRepository) ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	var rows []orderModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.attachItems(ctx, rows)
}

// UpdateStatusTx validates the transition against the row as it is inside the
// transaction, so two concurrent updates cannot both apply. Cancelling
// restocks every item.
func (r *orderRepository) UpdateStatusTx(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus, at time.Time) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec orderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		current := domain.OrderStatus(rec.Status)
		if !current.CanTransition(next) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current, next)
		}

		items, err := loadOrderItems(tx, orderID)
		if err != nil {
			return err
		}
		if next == domain.OrderStatusCancelled {
			// Restock in the same ascending product-id order checkout reserves
			// in, so a concurrent cancel and checkout cannot deadlock.
			sort.Slice(items, func(i, j int) bool {
				return items[i].ProductID.String() < items[j].ProductID.String()
			})
			for _, item := range items {
				if err := releaseStock(tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if err := tx.Model(&orderModel{}).
			Where("order_id = ?", orderID).
			Updates(map[string]any{
				"status":     string(next),
				"updated_at": at,
			}).Error; err != nil {
			return err
		}
		rec.Status = string(next)
		rec.UpdatedAt = at
		result = toDomainOrder(rec, items)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (r *orderRepository) UpdatePaymentStatusTx(ctx context.Context, orderID uuid.UUID, next domain.PaymentStatus, at time.Time) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec orderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		current := domain.PaymentStatus(rec.PaymentStatus)
		if !current.CanTransition(next) {
			return fmt.Errorf("%w: payment %s to %s", domain.ErrInvalidTransition, current, next)
		}

		if err := tx.Model(&orderModel{}).
			Where("order_id = ?", orderID).
			Updates(map[string]any{
				"payment_status": string(next),
				"updated_at":     at,
			}).Error; err != nil {
			return err
		}
		items, err := loadOrderItems(tx, orderID)
		if err != nil {
			return err
		}
		rec.PaymentStatus = string(next)
		rec.UpdatedAt = at
		result = toDomainOrder(rec, items)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (r *orderRepository) attachItems(ctx context.Context, rows []orderModel) ([]domain.Order, error) {
	db := r.db.WithContext(ctx)
	result := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		items, err := loadOrderItems(db, row.OrderID)
		if err != nil {
			return nil, err
		}
		result = append(result, toDomainOrder(row, items))
	}
	return result, nil
}

func loadOrderItems(db *gorm.DB, orderID uuid.UUID) ([]orderItemModel, error) {
	var items []orderItemModel
	if err := db.Where("order_id = ?", orderID).Order("product_name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
