package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// orderTransitions is the forward-only transition table. Delivered and
// cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransition reports whether moving from s to next is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the opaque payment state; no gateway is integrated.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusFailed
}

// CanTransition allows settling a pending payment either way; settled
// payments are terminal.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	return s == PaymentStatusPending && (next == PaymentStatusPaid || next == PaymentStatusFailed)
}

// PaymentMethod enumerates the accepted checkout payment methods.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodBankTransfer || m == PaymentMethodCashOnDelivery
}

// ShippingAddress is the delivery destination captured with the order.
type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate checks that every address component is present.
func (a ShippingAddress) Validate() error {
	for _, field := range []struct{ name, value string }{
		{"address", a.Address},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: shipping %s is required", ErrInvalidInput, field.name)
		}
	}
	return nil
}

// OrderItem is a frozen copy of a cart line at placement time.
type OrderItem struct {
	ProductID      uuid.UUID
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

// Order is the immutable checkout snapshot. Items and TotalCents never change
// after creation; only Status and PaymentStatus advance, admin-driven, one
// field at a time.
type Order struct {
	OrderID         uuid.UUID
	AccountID       uuid.UUID
	Items           []OrderItem
	TotalCents      int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
