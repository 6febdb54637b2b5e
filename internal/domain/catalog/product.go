// Package catalog holds the product read model used by checkout pricing.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product id does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a sellable catalog item. Stock is authoritative in the
// database; the value here is a snapshot for pre-checks only.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	StockQuantity int
	IsActive      bool
}

// UnitPrice returns the effective selling price: the discount price when one
// is set and actually lower than the list price, otherwise the list price.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// Repository provides product lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
