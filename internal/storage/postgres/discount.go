package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velmart/storefront/internal/domain/discount"
)

const (
	getDiscountSQL = `SELECT code, discount_type, discount_value, is_active,
		valid_from, valid_until, COALESCE(max_uses, 0), used_count, min_purchase_amount
		FROM discount_codes WHERE code = $1`

	incrementUsesSQL = `UPDATE discount_codes SET used_count = used_count + 1 WHERE code = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode loads a discount code. Eligibility checks (active flag, window,
// usage budget, minimum purchase) are the domain's job, not the query's.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	var (
		c           discount.Code
		minPurchase decimal.NullDecimal
	)
	err := r.pool.QueryRow(ctx, getDiscountSQL, code).Scan(
		&c.Code, &c.Type, &c.Value, &c.IsActive,
		&c.ValidFrom, &c.ValidUntil, &c.MaxUses, &c.UsedCount, &minPurchase,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	if minPurchase.Valid {
		c.MinPurchaseAmount = &minPurchase.Decimal
	}
	return &c, nil
}

// IncrementUses bumps used_count by one with a database-side increment, so
// concurrent paid orders never lose an update.
func (r *DiscountRepository) IncrementUses(ctx context.Context, code string) error {
	ct, err := r.pool.Exec(ctx, incrementUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for %q: %w", code, err)
	}
	if ct.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}
