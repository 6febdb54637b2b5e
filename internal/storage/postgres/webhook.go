package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmart/storefront/internal/domain/payment"
)

const (
	insertEventSQL = `INSERT INTO webhook_events (event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`

	markEventStatusSQL = `UPDATE webhook_events SET status = $2 WHERE event_id = $1`

	createInvoiceSQL = `INSERT INTO invoices (id, order_id, invoice_number, due_date, status)
		VALUES ($1, $2, $3, $4, $5)`

	clearCartSQL = `DELETE FROM shopping_cart WHERE user_id = $1`
)

var (
	_ payment.EventStore   = (*WebhookEventRepository)(nil)
	_ payment.InvoiceStore = (*InvoiceRepository)(nil)
	_ payment.CartStore    = (*CartRepository)(nil)
)

// WebhookEventRepository is the persisted idempotency guard for gateway
// notifications.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepository returns a WebhookEventRepository on the pool.
func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// Insert stores the event row. The primary key makes insertion
// first-writer-wins: a concurrent or repeated delivery of the same event id
// affects zero rows and reports payment.ErrDuplicateEvent.
func (r *WebhookEventRepository) Insert(ctx context.Context, e *payment.Event) error {
	ct, err := r.pool.Exec(ctx, insertEventSQL, e.ID, e.Type, []byte(e.Payload), string(e.Status))
	if err != nil {
		return fmt.Errorf("inserting webhook event %d: %w", e.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return payment.ErrDuplicateEvent
	}
	return nil
}

// MarkStatus records the event's processing outcome.
func (r *WebhookEventRepository) MarkStatus(ctx context.Context, eventID int64, status payment.EventStatus) error {
	if _, err := r.pool.Exec(ctx, markEventStatusSQL, eventID, string(status)); err != nil {
		return fmt.Errorf("marking webhook event %d %s: %w", eventID, status, err)
	}
	return nil
}

// InvoiceRepository persists invoices.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository on the pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create persists one invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *payment.Invoice) error {
	_, err := r.pool.Exec(ctx, createInvoiceSQL,
		uuid.New().String(), inv.OrderID, inv.Number, inv.DueDate, inv.Status)
	if err != nil {
		return fmt.Errorf("creating invoice %q: %w", inv.Number, err)
	}
	return nil
}

// CartRepository clears shopping carts after completed purchases.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository on the pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ClearCart removes every cart row for the user.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}
