package postgres

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

func toDomainAccount(row accountModel) domain.Account {
	return domain.Account{
		AccountID:         row.AccountID,
		Email:             row.Email,
		PasswordHash:      row.PasswordHash,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		Role:              domain.Role(row.Role),
		IsActive:          row.IsActive,
		Guard:             toGuardState(row.FailedAttempts, row.LockedUntil),
		LastLoginAt:       row.LastLoginAt,
		PasswordChangedAt: row.PasswordChangedAt,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

// toGuardState rebuilds the guard from its two columns. A non-null
// locked_until means locked, even when expired; the domain treats an expired
// lock as open on the next transition.
func toGuardState(failedAttempts int, lockedUntil *time.Time) domain.GuardState {
	if lockedUntil != nil {
		return domain.LockedGuard(lockedUntil.UTC())
	}
	return domain.OpenGuard(failedAttempts)
}

func toDomainProduct(row productModel) domain.Product {
	var images []string
	if row.Images != "" {
		_ = json.Unmarshal([]byte(row.Images), &images)
	}
	return domain.Product{
		ProductID:   row.ProductID,
		Name:        row.Name,
		Description: row.Description,
		PriceCents:  row.PriceCents,
		Stock:       row.Stock,
		Category:    row.Category,
		Images:      images,
		IsActive:    row.IsActive,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func encodeImages(images []string) string {
	if len(images) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func toDomainOrder(row orderModel, items []orderItemModel) domain.Order {
	order := domain.Order{
		OrderID:       row.OrderID,
		AccountID:     row.AccountID,
		TotalCents:    row.TotalCents,
		Status:        domain.OrderStatus(row.Status),
		PaymentStatus: domain.PaymentStatus(row.PaymentStatus),
		PaymentMethod: domain.PaymentMethod(row.PaymentMethod),
		ShippingAddress: domain.ShippingAddress{
			Address:    row.ShipAddress,
			City:       row.ShipCity,
			PostalCode: row.ShipPostalCode,
			Country:    row.ShipCountry,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	order.Items = make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return order
}

func toDomainLoginAttempt(row loginAttemptModel) ports.LoginAttemptRecord {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return ports.LoginAttemptRecord{
		ID:            row.ID,
		AccountID:     row.AccountID,
		AttemptAt:     row.AttemptAt,
		IPAddress:     ip,
		Status:        row.Status,
		FailureReason: row.FailureReason,
		UserAgent:     row.UserAgent,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
