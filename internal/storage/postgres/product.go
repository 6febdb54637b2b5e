package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velmart/storefront/internal/domain/catalog"
)

const getProductSQL = `SELECT id, name, price, discount_price, stock_quantity, is_active
	FROM products WHERE id = $1`

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID loads one product. Returns catalog.ErrNotFound when no row exists.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	var (
		p             catalog.Product
		discountPrice decimal.NullDecimal
	)
	err := r.pool.QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID, &p.Name, &p.Price, &discountPrice, &p.StockQuantity, &p.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}
	if discountPrice.Valid {
		p.DiscountPrice = &discountPrice.Decimal
	}
	return &p, nil
}
