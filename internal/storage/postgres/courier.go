package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmart/storefront/internal/domain/dispatch"
	"github.com/velmart/storefront/internal/domain/order"
)

const (
	listAvailableCouriersSQL = `SELECT id, name, is_available, current_lat, current_lng, rating, total_deliveries
		FROM courier_riders WHERE is_available`

	claimCourierSQL = `UPDATE courier_riders SET is_available = FALSE
		WHERE id = $1 AND is_available`

	dispatchOrderSQL = `UPDATE orders SET assigned_courier_id = $2, status = 'dispatched', updated_at = now()
		WHERE id = $1`

	lockOrderCourierSQL = `SELECT assigned_courier_id FROM orders WHERE id = $1 FOR UPDATE`

	deliverOrderSQL = `UPDATE orders SET status = 'delivered', updated_at = now() WHERE id = $1`

	returnCourierSQL = `UPDATE courier_riders
		SET is_available = TRUE, total_deliveries = total_deliveries + 1
		WHERE id = $1`
)

var _ dispatch.Repository = (*CourierRepository)(nil)

// CourierRepository implements dispatch.Repository backed by PostgreSQL.
// The two-entity dispatch transitions are single transactions with a
// conditional flip on is_available, so an order can never read as dispatched
// while its courier still reads as available.
type CourierRepository struct {
	pool *pgxpool.Pool
}

// NewCourierRepository returns a CourierRepository that uses the given pool.
func NewCourierRepository(pool *pgxpool.Pool) *CourierRepository {
	return &CourierRepository{pool: pool}
}

// ListAvailable returns all couriers currently marked available.
func (r *CourierRepository) ListAvailable(ctx context.Context) ([]dispatch.Courier, error) {
	rows, err := r.pool.Query(ctx, listAvailableCouriersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing available couriers: %w", err)
	}
	defer rows.Close()

	var couriers []dispatch.Courier
	for rows.Next() {
		var (
			c        dispatch.Courier
			lat, lng *float64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.IsAvailable, &lat, &lng, &c.Rating, &c.TotalDeliveries); err != nil {
			return nil, fmt.Errorf("scanning courier: %w", err)
		}
		if lat != nil && lng != nil {
			c.Location = &dispatch.Location{Lat: *lat, Lng: *lng}
		}
		couriers = append(couriers, c)
	}
	return couriers, rows.Err()
}

// Assign flips the courier to unavailable and marks the order dispatched in
// one transaction. The conditional update on is_available loses gracefully
// to a concurrent assignment.
func (r *CourierRepository) Assign(ctx context.Context, orderID, courierID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, claimCourierSQL, courierID)
	if err != nil {
		return fmt.Errorf("claiming courier %q: %w", courierID, err)
	}
	if ct.RowsAffected() == 0 {
		return dispatch.ErrCourierUnavailable
	}

	ct, err = tx.Exec(ctx, dispatchOrderSQL, orderID, courierID)
	if err != nil {
		return fmt.Errorf("dispatching order %q: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	return tx.Commit(ctx)
}

// CompleteDelivery marks the order delivered and returns its courier to the
// pool with an incremented delivery counter. An order with no assigned
// courier still transitions.
func (r *CourierRepository) CompleteDelivery(ctx context.Context, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete delivery: %w", err)
	}
	defer tx.Rollback(ctx)

	var courierID *string
	if err := tx.QueryRow(ctx, lockOrderCourierSQL, orderID).Scan(&courierID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("locking order %q: %w", orderID, err)
	}

	if _, err := tx.Exec(ctx, deliverOrderSQL, orderID); err != nil {
		return fmt.Errorf("marking order %q delivered: %w", orderID, err)
	}

	if courierID != nil {
		if _, err := tx.Exec(ctx, returnCourierSQL, *courierID); err != nil {
			return fmt.Errorf("returning courier %q: %w", *courierID, err)
		}
	}

	return tx.Commit(ctx)
}
