package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

// CreateProduct adds a catalog entry owned by the calling admin.
func (s *Service) CreateProduct(ctx context.Context, adminID uuid.UUID, input ProductInput) (ProductView, error) {
	now := s.nowFn()
	product := domain.Product{
		ProductID:   uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		Stock:       input.Stock,
		Category:    strings.TrimSpace(input.Category),
		Images:      input.Images,
		IsActive:    true,
		CreatedBy:   adminID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := domain.ValidateProduct(product); err != nil {
		return ProductView{}, err
	}
	created, err := s.products.Create(ctx, product)
	if err != nil {
		return ProductView{}, err
	}
	return toProductView(created), nil
}

// UpdateProduct replaces the mutable catalog fields of an existing product.
// Stock set here is the admin restock path; checkout decrements go through
// the inventory ledger only.
func (s *Service) UpdateProduct(ctx context.Context, productID uuid.UUID, input ProductInput) (ProductView, error) {
	existing, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.PriceCents = input.PriceCents
	existing.Stock = input.Stock
	existing.Category = strings.TrimSpace(input.Category)
	existing.Images = input.Images
	existing.UpdatedAt = s.nowFn()

	if err := domain.ValidateProduct(existing); err != nil {
		return ProductView{}, err
	}
	updated, err := s.products.Update(ctx, existing)
	if err != nil {
		return ProductView{}, err
	}
	return toProductView(updated), nil
}

// DeactivateProduct soft-deletes a product; existing cart lines and orders
// referencing it are untouched.
func (s *Service) DeactivateProduct(ctx context.Context, productID uuid.UUID) error {
	return s.products.Deactivate(ctx, productID, s.nowFn())
}

// GetProduct returns one catalog entry, active or not.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (ProductView, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}
	return toProductView(product), nil
}

// ListProducts pages the active catalog, optionally filtered by category.
func (s *Service) ListProducts(ctx context.Context, q ProductListQuery) ([]ProductView, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	products, err := s.products.List(ctx, ports.ProductFilter{
		Category:   strings.TrimSpace(q.Category),
		ActiveOnly: true,
		Limit:      q.Limit,
		Offset:     (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return nil, err
	}
	result := make([]ProductView, 0, len(products))
	for _, product := range products {
		result = append(result, toProductView(product))
	}
	return result, nil
}
