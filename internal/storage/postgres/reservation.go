package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmart/storefront/internal/domain/reservation"
)

const (
	lockStockSQL = `SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE`

	liveReservedSQL = `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
		WHERE product_id = $1 AND expires_at > now()`

	insertReservationSQL = `INSERT INTO stock_reservations (product_id, order_id, user_id, quantity, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	lockOrderReservationsSQL = `SELECT product_id, quantity FROM stock_reservations
		WHERE order_id = $1 FOR UPDATE`

	commitStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	deleteOrderReservationsSQL = `DELETE FROM stock_reservations WHERE order_id = $1`

	sweepExpiredSQL = `DELETE FROM stock_reservations WHERE expires_at <= now()`
)

var _ reservation.Manager = (*ReservationRepository)(nil)

// ReservationRepository implements reservation.Manager on PostgreSQL.
//
// Availability is evaluated under a product-row lock: stock_quantity minus
// live (unexpired) reservations. Two concurrent checkouts for the last unit
// serialize on the lock, so one sees the other's claim and fails.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository returns a ReservationRepository on the given pool.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Reserve grants all lines or none inside one transaction.
func (r *ReservationRepository) Reserve(ctx context.Context, orderID, userID string, lines []reservation.Line, ttl time.Duration) error {
	// Lock products in a stable order so concurrent multi-item reservations
	// cannot deadlock.
	sorted := make([]reservation.Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	expiresAt := time.Now().Add(ttl)
	var shortfalls []reservation.Shortfall

	for _, line := range sorted {
		var stock int
		if err := tx.QueryRow(ctx, lockStockSQL, line.ProductID).Scan(&stock); err != nil {
			return fmt.Errorf("locking product %q: %w", line.ProductID, err)
		}

		var reserved int
		if err := tx.QueryRow(ctx, liveReservedSQL, line.ProductID).Scan(&reserved); err != nil {
			return fmt.Errorf("summing live reservations for %q: %w", line.ProductID, err)
		}

		available := stock - reserved
		if available < line.Quantity {
			shortfalls = append(shortfalls, reservation.Shortfall{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
			continue
		}

		if _, err := tx.Exec(ctx, insertReservationSQL,
			line.ProductID, orderID, userID, line.Quantity, expiresAt,
		); err != nil {
			return fmt.Errorf("inserting reservation for %q: %w", line.ProductID, err)
		}
	}

	if len(shortfalls) > 0 {
		// Rollback via defer: nothing is granted.
		return &reservation.InsufficientStockError{Shortfalls: shortfalls}
	}

	return tx.Commit(ctx)
}

// Commit decrements stock by each reserved quantity and deletes the
// reservations, atomically. This is the only permanent stock reduction.
func (r *ReservationRepository) Commit(ctx context.Context, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, lockOrderReservationsSQL, orderID)
	if err != nil {
		return fmt.Errorf("locking reservations for order %q: %w", orderID, err)
	}

	type claim struct {
		productID string
		quantity  int
	}
	var claims []claim
	for rows.Next() {
		var c claim
		if err := rows.Scan(&c.productID, &c.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scanning reservation: %w", err)
		}
		claims = append(claims, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating reservations: %w", err)
	}
	if len(claims) == 0 {
		// The sweeper got here first. Surfacing this beats silently
		// acknowledging a commit that decremented nothing.
		return fmt.Errorf("committing order %q: %w", orderID, reservation.ErrNoneHeld)
	}

	for _, c := range claims {
		ct, err := tx.Exec(ctx, commitStockSQL, c.productID, c.quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock for %q: %w", c.productID, err)
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("stock underflow committing product %q for order %q", c.productID, orderID)
		}
	}

	if _, err := tx.Exec(ctx, deleteOrderReservationsSQL, orderID); err != nil {
		return fmt.Errorf("deleting reservations for order %q: %w", orderID, err)
	}

	return tx.Commit(ctx)
}

// Release drops the order's reservations without touching stock.
func (r *ReservationRepository) Release(ctx context.Context, orderID string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderReservationsSQL, orderID); err != nil {
		return fmt.Errorf("releasing reservations for order %q: %w", orderID, err)
	}
	return nil
}

// SweepExpired deletes reservations whose expiry has passed.
func (r *ReservationRepository) SweepExpired(ctx context.Context) (int64, error) {
	ct, err := r.pool.Exec(ctx, sweepExpiredSQL)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired reservations: %w", err)
	}
	return ct.RowsAffected(), nil
}
