package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartLine is one product entry in a cart. UnitPriceCents is the price
// snapshot captured when the line was first added; it is what order totals
// are computed from, even if the catalog price changes later.
type CartLine struct {
	ProductID      uuid.UUID
	ProductName    string
	Quantity       int
	UnitPriceCents int64
	AddedAt        time.Time
}

// Cart is the per-account mutable line collection, owned by exactly one
// account and created lazily. At most one line per product.
type Cart struct {
	CartID    uuid.UUID
	AccountID uuid.UUID
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total is derived from the lines on every call; it is never stored.
func (c Cart) Total() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.UnitPriceCents * int64(line.Quantity)
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Line returns the line for productID, if present.
func (c Cart) Line(productID uuid.UUID) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return CartLine{}, false
}
