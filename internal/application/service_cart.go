package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/domain"
)

// GetCart returns the caller's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context, accountID uuid.UUID) (CartView, error) {
	cart, err := s.carts.GetOrCreate(ctx, accountID, s.nowFn())
	if err != nil {
		return CartView{}, err
	}
	return toCartView(cart), nil
}

// AddCartLine merges quantity into the caller's cart, snapshotting the
// product's current price for new lines. The stock check is advisory only;
// nothing is reserved until checkout.
func (s *Service) AddCartLine(ctx context.Context, accountID uuid.UUID, req AddCartLineRequest) (CartView, error) {
	if req.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidInput)
	}
	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return CartView{}, err
	}
	if !product.IsActive {
		return CartView{}, domain.ErrNotFound
	}
	if product.Stock < req.Quantity {
		return CartView{}, &domain.InsufficientStockError{ProductName: product.Name}
	}

	cart, err := s.carts.UpsertLine(ctx, accountID, product.ProductID, req.Quantity, product.PriceCents, s.nowFn())
	if err != nil {
		return CartView{}, err
	}
	return toCartView(cart), nil
}

// SetCartLineQuantity replaces a line's quantity after re-validating stock.
func (s *Service) SetCartLineQuantity(ctx context.Context, accountID, productID uuid.UUID, quantity int) (CartView, error) {
	if quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidInput)
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return CartView{}, err
	}
	if product.Stock < quantity {
		return CartView{}, &domain.InsufficientStockError{ProductName: product.Name}
	}

	cart, err := s.carts.SetLineQuantity(ctx, accountID, productID, quantity, s.nowFn())
	if err != nil {
		return CartView{}, err
	}
	return toCartView(cart), nil
}

// RemoveCartLine deletes a line; removing an absent product is a no-op.
func (s *Service) RemoveCartLine(ctx context.Context, accountID, productID uuid.UUID) (CartView, error) {
	cart, err := s.carts.RemoveLine(ctx, accountID, productID, s.nowFn())
	if err != nil {
		return CartView{}, err
	}
	return toCartView(cart), nil
}
