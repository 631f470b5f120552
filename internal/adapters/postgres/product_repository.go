package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	rec := productModel{
		ProductID:   product.ProductID,
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Stock:       product.Stock,
		Category:    product.Category,
		Images:      encodeImages(product.Images),
		IsActive:    product.IsActive,
		CreatedBy:   product.CreatedBy,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrConflict
		}
		return domain.Product{}, err
	}
	return toDomainProduct(rec), nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("product_id = ?", product.ProductID).
		Updates(map[string]any{
			"name":        product.Name,
			"description": product.Description,
			"price_cents": product.PriceCents,
			"stock":       product.Stock,
			"category":    product.Category,
			"images":      encodeImages(product.Images),
			"is_active":   product.IsActive,
			"updated_at":  product.UpdatedAt,
		})
	if res.Error != nil {
		return domain.Product{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Product{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, product.ProductID)
}

func (r *productRepository) Deactivate(ctx context.Context, productID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, err
	}
	return toDomainProduct(rec), nil
}

func (r *productRepository) List(ctx context.Context, filter ports.ProductFilter) ([]domain.Product, error) {
	query := r.db.WithContext(ctx).Model(&productModel{})
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var rows []productModel
	if err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainProduct(row))
	}
	return result, nil
}
