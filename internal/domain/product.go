package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. Stock is the single source of truth for
// availability: only order placement decrements it and only cancellation
// restocks it, never cart mutations.
type Product struct {
	ProductID   uuid.UUID
	Name        string
	Description string
	PriceCents  int64
	Stock       int
	Category    string
	Images      []string
	IsActive    bool
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateProduct checks the catalog invariants for create/update input.
func ValidateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: product description is required", ErrInvalidInput)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: price must be zero or greater", ErrInvalidInput)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be zero or greater", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if len(p.Images) == 0 {
		return fmt.Errorf("%w: at least one product image is required", ErrInvalidInput)
	}
	return nil
}
