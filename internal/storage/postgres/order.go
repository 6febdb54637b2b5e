package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmart/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, order_number, user_id, total_amount, discount_amount, discount_code_used,
		 shipping_address, status, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL = `SELECT id, order_number, user_id, total_amount, discount_amount,
		COALESCE(discount_code_used, ''), shipping_address, status, payment_status,
		COALESCE(payment_reference, ''), COALESCE(assigned_courier_id::text, ''),
		fraud_risk_score, fraud_flags, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = $1`

	markPaidSQL = `UPDATE orders
		SET payment_status = 'completed', payment_reference = $2, status = 'processing', updated_at = now()
		WHERE order_number = $1
		RETURNING id, order_number, user_id, total_amount, discount_amount,
			COALESCE(discount_code_used, ''), status, payment_status`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND payment_status = 'pending'`

	countOrdersSinceSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND created_at >= $2`

	countCompletedSQL = `SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND payment_status = 'completed'`

	recentAddressesSQL = `SELECT shipping_address FROM orders
		WHERE user_id = $1 AND payment_status = 'completed'
		ORDER BY created_at DESC LIMIT $2`

	updateRiskSQL = `UPDATE orders SET fraud_risk_score = $2, fraud_flags = $3, updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements the order persistence contracts: checkout's
// order.Repository, the reconciler's OrderStore, and the fraud scorer's
// history reader and writer.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.TotalAmount, o.DiscountAmount, o.DiscountCode,
		addr, string(o.Status), string(o.PaymentStatus), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	for _, item := range o.Items {
		if _, err := tx.Exec(ctx, createOrderItemSQL,
			o.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
		); err != nil {
			return fmt.Errorf("creating order item %q: %w", item.ProductID, err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a pending order; its items cascade. Orders past pending
// payment are never deleted, which the WHERE clause enforces.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

// GetByID loads an order with its items. Returns order.ErrNotFound when no
// row exists.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o     order.Order
		addr  []byte
		score *int
		flags []byte
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.Number, &o.UserID, &o.TotalAmount, &o.DiscountAmount,
		&o.DiscountCode, &addr, &o.Status, &o.PaymentStatus,
		&o.PaymentReference, &o.AssignedCourierID,
		&score, &flags, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	o.FraudRiskScore = score
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &o.FraudFlags); err != nil {
			return nil, fmt.Errorf("unmarshaling fraud flags: %w", err)
		}
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item order.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}

	return &o, nil
}

// MarkPaid transitions the order identified by its order number to
// processing/completed and records the payment reference, all in one
// statement. Returns order.ErrNotFound when no order carries the number.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderNumber, paymentReference string) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, markPaidSQL, orderNumber, paymentReference).Scan(
		&o.ID, &o.Number, &o.UserID, &o.TotalAmount, &o.DiscountAmount,
		&o.DiscountCode, &o.Status, &o.PaymentStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("marking order %q paid: %w", orderNumber, err)
	}
	o.PaymentReference = paymentReference
	return &o, nil
}

// CountOrdersSince counts a user's orders created at or after since.
func (r *OrderRepository) CountOrdersSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersSinceSQL, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting recent orders: %w", err)
	}
	return n, nil
}

// CountCompletedOrders counts a user's orders with completed payment.
func (r *OrderRepository) CountCompletedOrders(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCompletedSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting completed orders: %w", err)
	}
	return n, nil
}

// RecentCompletedAddresses returns shipping addresses of the user's most
// recent completed orders, newest first.
func (r *OrderRepository) RecentCompletedAddresses(ctx context.Context, userID string, limit int) ([]order.Address, error) {
	rows, err := r.pool.Query(ctx, recentAddressesSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading previous addresses: %w", err)
	}
	defer rows.Close()

	var addrs []order.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning address: %w", err)
		}
		var a order.Address
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshaling address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// UpdateRiskAssessment overwrites the order's fraud score and flags.
func (r *OrderRepository) UpdateRiskAssessment(ctx context.Context, orderID string, score int, flags []string) error {
	if flags == nil {
		flags = []string{}
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshaling fraud flags: %w", err)
	}
	ct, err := r.pool.Exec(ctx, updateRiskSQL, orderID, score, raw)
	if err != nil {
		return fmt.Errorf("updating risk assessment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
