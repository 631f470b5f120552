package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopworks/commerce-api/internal/domain"
)

type cartRepository struct {
	db *gorm.DB
}

// GetOrCreate loads the account's cart, creating it on first access.
// ON CONFLICT DO NOTHING on the unique account_id makes a concurrent first
// access converge on one row.
func (r *cartRepository) GetOrCreate(ctx context.Context, accountID uuid.UUID, at time.Time) (domain.Cart, error) {
	db := r.db.WithContext(ctx)
	rec, err := getOrCreateCart(db, accountID, at)
	if err != nil {
		return domain.Cart{}, err
	}
	return loadCart(db, rec)
}

func (r *cartRepository) UpsertLine(ctx context.Context, accountID, productID uuid.UUID, quantityDelta int, unitPriceCents int64, at time.Time) (domain.Cart, error) {
	db := r.db.WithContext(ctx)
	rec, err := getOrCreateCart(db, accountID, at)
	if err != nil {
		return domain.Cart{}, err
	}

	// Conflicting adds of the same product merge quantities at the store;
	// the original price snapshot and added_at are kept.
	line := cartItemModel{
		CartID:         rec.CartID,
		ProductID:      productID,
		Quantity:       quantityDelta,
		UnitPriceCents: unitPriceCents,
		AddedAt:        at,
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity": gorm.Expr("cart_items.quantity + ?", quantityDelta),
		}),
	}).Create(&line).Error
	if err != nil {
		return domain.Cart{}, err
	}

	if err := touchCart(db, rec.CartID, at); err != nil {
		return domain.Cart{}, err
	}
	rec.UpdatedAt = at
	return loadCart(db, rec)
}

func (r *cartRepository) SetLineQuantity(ctx context.Context, accountID, productID uuid.UUID, quantity int, at time.Time) (domain.Cart, error) {
	db := r.db.WithContext(ctx)
	rec, err := getOrCreateCart(db, accountID, at)
	if err != nil {
		return domain.Cart{}, err
	}

	res := db.Model(&cartItemModel{}).
		Where("cart_id = ?", rec.CartID).
		Where("product_id = ?", productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return domain.Cart{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Cart{}, domain.ErrLineNotFound
	}

	if err := touchCart(db, rec.CartID, at); err != nil {
		return domain.Cart{}, err
	}
	rec.UpdatedAt = at
	return loadCart(db, rec)
}

func (r *cartRepository) RemoveLine(ctx context.Context, accountID, productID uuid.UUID, at time.Time) (domain.Cart, error) {
	db := r.db.WithContext(ctx)
	rec, err := getOrCreateCart(db, accountID, at)
	if err != nil {
		return domain.Cart{}, err
	}

	// Removing an absent line is a no-op, not an error.
	res := db.Where("cart_id = ?", rec.CartID).
		Where("product_id = ?", productID).
		Delete(&cartItemModel{})
	if res.Error != nil {
		return domain.Cart{}, res.Error
	}
	if res.RowsAffected > 0 {
		if err := touchCart(db, rec.CartID, at); err != nil {
			return domain.Cart{}, err
		}
		rec.UpdatedAt = at
	}
	return loadCart(db, rec)
}

func getOrCreateCart(db *gorm.DB, accountID uuid.UUID, at time.Time) (cartModel, error) {
	var rec cartModel
	err := db.Where("account_id = ?", accountID).Take(&rec).Error
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return cartModel{}, err
	}

	fresh := cartModel{AccountID: accountID, CreatedAt: at, UpdatedAt: at}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return cartModel{}, err
	}
	if err := db.Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		return cartModel{}, err
	}
	return rec, nil
}

func touchCart(db *gorm.DB, cartID uuid.UUID, at time.Time) error {
	return db.Model(&cartModel{}).
		Where("cart_id = ?", cartID).
		Update("updated_at", at).Error
}

type cartLineRow struct {
	ProductID      uuid.UUID `gorm:"column:product_id"`
	ProductName    string    `gorm:"column:product_name"`
	Quantity       int       `gorm:"column:quantity"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents"`
	AddedAt        time.Time `gorm:"column:added_at"`
}

// loadCart joins lines with the catalog for display names. Prices stay the
// cart snapshot, never the current catalog price.
func loadCart(db *gorm.DB, rec cartModel) (domain.Cart, error) {
	var rows []cartLineRow
	err := db.Table("cart_items").
		Select("cart_items.product_id, products.name AS product_name, cart_items.quantity, cart_items.unit_price_cents, cart_items.added_at").
		Joins("JOIN products ON products.product_id = cart_items.product_id").
		Where("cart_items.cart_id = ?", rec.CartID).
		Order("cart_items.added_at ASC").
		Find(&rows).Error
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		CartID:    rec.CartID,
		AccountID: rec.AccountID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Lines:     make([]domain.CartLine, 0, len(rows)),
	}
	for _, row := range rows {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:      row.ProductID,
			ProductName:    row.ProductName,
			Quantity:       row.Quantity,
			UnitPriceCents: row.UnitPriceCents,
			AddedAt:        row.AddedAt,
		})
	}
	return cart, nil
}
