// Package reservation manages short-lived stock claims that bridge the gap
// between checkout and payment confirmation.
//
// A reservation never touches the product's stock counter. Stock is
// decremented exactly once, at Commit, when payment is confirmed. Release
// and the expiry sweep simply drop the claim.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrNoneHeld is returned by Commit when the order holds no reservations,
// typically because the expiry sweep reclaimed them before the payment
// landed. Callers must not treat such a commit as a stock decrement.
var ErrNoneHeld = errors.New("no reservations held for order")

// DefaultTTL is how long a reservation holds stock before expiring.
const DefaultTTL = 15 * time.Minute

// Line is a requested claim of quantity units of one product.
type Line struct {
	ProductID string
	Quantity  int
}

// Shortfall describes one product that could not be reserved.
type Shortfall struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError is returned by Reserve when any line cannot be
// covered. No reservations are left behind: the grant is all-or-nothing.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 1 {
		s := e.Shortfalls[0]
		return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
			s.ProductID, s.Requested, s.Available)
	}
	return fmt.Sprintf("insufficient stock for %d products", len(e.Shortfalls))
}

// Manager grants, commits, releases, and sweeps stock reservations.
//
// Implementations must make each method atomic with respect to concurrent
// calls: availability is stock_quantity minus live reservations, evaluated
// under a lock on the product row.
type Manager interface {
	// Reserve claims every line for the given order, each expiring at
	// now + ttl. The whole call fails with *InsufficientStockError if any
	// line cannot be covered, leaving no partial reservations.
	Reserve(ctx context.Context, orderID, userID string, lines []Line, ttl time.Duration) error

	// Commit converts the order's reservations into a permanent stock
	// decrement and deletes them. This is the only place stock is reduced.
	// Returns ErrNoneHeld when the order has no reservations left to
	// commit, so a late payment against a swept hold cannot pass silently.
	Commit(ctx context.Context, orderID string) error

	// Release drops the order's reservations without touching stock.
	Release(ctx context.Context, orderID string) error

	// SweepExpired reclaims reservations whose expiry has passed, returning
	// how many were removed. Safe to run concurrently with Reserve and
	// Commit.
	SweepExpired(ctx context.Context) (int64, error)
}
