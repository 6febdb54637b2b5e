// Package discount models promotional codes and their eligibility rules.
// A code that fails eligibility never fails a checkout; callers drop it and
// charge the undiscounted total.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a code does not exist.
var ErrNotFound = errors.New("discount code not found")

// Type selects how Value is applied to an order total.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// Code is a promotional discount code.
type Code struct {
	Code              string
	Type              Type
	Value             decimal.Decimal
	IsActive          bool
	ValidFrom         time.Time
	ValidUntil        time.Time
	MaxUses           int // 0 means unlimited
	UsedCount         int
	MinPurchaseAmount *decimal.Decimal
}

// EligibleFor reports whether the code may be applied to an order of the
// given total at the given time.
func (c *Code) EligibleFor(total decimal.Decimal, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return false
	}
	if c.MinPurchaseAmount != nil && total.LessThan(*c.MinPurchaseAmount) {
		return false
	}
	return true
}

// Amount computes the discount for the given total, capped at the total and
// never negative, rounded to cents.
func (c *Code) Amount(total decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = total.Mul(c.Value).Div(decimal.NewFromInt(100))
	case TypeFixed:
		amount = c.Value
	}
	if amount.GreaterThan(total) {
		amount = total
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// Repository provides discount code reads and usage accounting.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	// IncrementUses bumps used_count after a paid order consumed the code.
	IncrementUses(ctx context.Context, code string) error
}
