package postgres

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopworks/commerce-api/internal/domain"
)

// reserveStock decrements stock with a single conditional UPDATE. The
// stock >= quantity guard in the WHERE clause is what makes concurrent
// reservations safe: the row lock serializes them and the loser's condition
// fails. Shared by order placement and any future reservation path so both
// use the same decrement.
func reserveStock(tx *gorm.DB, productID uuid.UUID, quantity int) error {
	res := tx.Model(&productModel{}).
		Where("product_id = ?", productID).
		Where("is_active = ?", true).
		Where("stock >= ?", quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var rec productModel
		if err := tx.Where("product_id = ?", productID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if !rec.IsActive {
			return domain.ErrNotFound
		}
		return &domain.InsufficientStockError{ProductName: rec.Name}
	}
	return nil
}

// releaseStock returns reserved quantity to the catalog when an order is
// cancelled. Deactivated products are restocked too; the quantity was theirs.
func releaseStock(tx *gorm.DB, productID uuid.UUID, quantity int) error {
	res := tx.Model(&productModel{}).
		Where("product_id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
