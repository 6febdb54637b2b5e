package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/velmart/storefront/internal/domain/discount"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/domain/reservation"
)

// EventChargeSuccess is the only event type that triggers order mutation.
const EventChargeSuccess = "charge.success"

// EventStatus tracks how far a stored webhook event got.
type EventStatus string

const (
	// EventReceived is set when the event row is first persisted, before any
	// side effect. A crash leaves the row in this state for manual replay.
	EventReceived EventStatus = "received"
	// EventProcessed means every side effect was applied.
	EventProcessed EventStatus = "processed"
	// EventFailed means verification or reconciliation failed after the row
	// was stored; the event needs manual reconciliation because the gateway
	// considers it delivered.
	EventFailed EventStatus = "failed"
)

// Sentinel errors for webhook handling.
var (
	ErrSignatureInvalid   = errors.New("webhook signature invalid")
	ErrDuplicateEvent     = errors.New("webhook event already processed")
	ErrVerificationFailed = errors.New("transaction verification failed")
)

// Event is an inbound gateway notification, keyed by the gateway's own id.
type Event struct {
	ID      int64
	Type    string
	Payload json.RawMessage
	Status  EventStatus
}

// EventStore is the idempotency guard. Insert must be first-writer-wins:
// a second insert of the same event id returns ErrDuplicateEvent, including
// under concurrent delivery.
type EventStore interface {
	Insert(ctx context.Context, e *Event) error
	MarkStatus(ctx context.Context, eventID int64, status EventStatus) error
}

// OrderStore locates and transitions the order a payment refers to.
type OrderStore interface {
	// MarkPaid transitions the order with the given order number to
	// payment_status=completed, status=processing, recording the payment
	// reference, and returns the updated order. Returns order.ErrNotFound
	// when no order carries that number.
	MarkPaid(ctx context.Context, orderNumber, paymentReference string) (*order.Order, error)
}

// CartStore clears a user's shopping cart once their purchase completes.
type CartStore interface {
	ClearCart(ctx context.Context, userID string) error
}

// Invoice is the billing record emitted once per paid order.
type Invoice struct {
	OrderID string
	Number  string
	DueDate time.Time
	Status  string
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	Create(ctx context.Context, inv *Invoice) error
}

// Reconciler applies the gateway's at-least-once webhook deliveries to order
// state exactly once.
type Reconciler struct {
	secret       []byte
	events       EventStore
	orders       OrderStore
	discounts    discount.Repository
	reservations reservation.Manager
	carts        CartStore
	invoices     InvoiceStore
	gateway      Gateway
	lg           *zap.Logger
	now          func() time.Time
}

// NewReconciler wires a Reconciler. secret is the gateway's webhook shared
// secret.
func NewReconciler(
	secret []byte,
	events EventStore,
	orders OrderStore,
	discounts discount.Repository,
	reservations reservation.Manager,
	carts CartStore,
	invoices InvoiceStore,
	gateway Gateway,
	lg *zap.Logger,
) *Reconciler {
	return &Reconciler{
		secret:       secret,
		events:       events,
		orders:       orders,
		discounts:    discounts,
		reservations: reservations,
		carts:        carts,
		invoices:     invoices,
		gateway:      gateway,
		lg:           lg,
		now:          time.Now,
	}
}

// webhookBody is the wire shape of a gateway notification.
type webhookBody struct {
	ID    int64  `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// Handle processes one raw webhook delivery.
//
// Gate order is load-bearing: signature, then idempotency, then gateway
// verification, then the order transition, then the stock commit. A
// duplicate delivery returns nil so the caller acknowledges it.
//
// On success Handle returns the reconciled order so the caller can drop any
// cached view of its status. The order is nil when nothing was mutated,
// which covers duplicates and non-charge events.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) (*order.Order, error) {
	if !VerifySignature(r.secret, body, signature) {
		r.lg.Warn("webhook rejected: bad signature")
		return nil, ErrSignatureInvalid
	}

	var evt webhookBody
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, errors.Wrap(err, "parse webhook body")
	}

	// Persist the event before any side effect so a redelivery after a crash
	// mid-processing cannot re-apply half-applied work.
	err := r.events.Insert(ctx, &Event{
		ID:      evt.ID,
		Type:    evt.Event,
		Payload: json.RawMessage(body),
		Status:  EventReceived,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		r.lg.Info("duplicate webhook delivery, skipping", zap.Int64("event_id", evt.ID))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store webhook event")
	}

	if evt.Event != EventChargeSuccess {
		return nil, r.finish(ctx, evt.ID, EventProcessed, nil)
	}

	reference := evt.Data.Reference

	v, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, r.finish(ctx, evt.ID, EventFailed,
			errors.Wrapf(ErrVerificationFailed, "verify %s: %s", reference, err))
	}
	if !v.Paid {
		return nil, r.finish(ctx, evt.ID, EventFailed,
			errors.Wrapf(ErrVerificationFailed, "gateway reports %s unpaid", reference))
	}

	o, err := r.orders.MarkPaid(ctx, reference, reference)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// A verified payment with no matching order must alert, never
			// silently drop.
			r.lg.Error("verified payment references unknown order",
				zap.String("reference", reference), zap.Int64("event_id", evt.ID))
		}
		return nil, r.finish(ctx, evt.ID, EventFailed, errors.Wrap(err, "mark order paid"))
	}

	if o.DiscountCode != "" {
		if err := r.discounts.IncrementUses(ctx, o.DiscountCode); err != nil {
			return nil, r.finish(ctx, evt.ID, EventFailed, errors.Wrap(err, "increment discount uses"))
		}
	}

	if err := r.reservations.Commit(ctx, o.ID); err != nil {
		if errors.Is(err, reservation.ErrNoneHeld) {
			// The sweeper reclaimed the hold before the payment landed. The
			// order is paid but stock was never decremented; that gap needs
			// a human, so alert loudly and leave the event failed.
			r.lg.Error("paid order has no live reservations",
				zap.String("order_id", o.ID), zap.String("order_number", o.Number),
				zap.Int64("event_id", evt.ID))
		}
		return nil, r.finish(ctx, evt.ID, EventFailed, errors.Wrap(err, "commit stock"))
	}

	if err := r.carts.ClearCart(ctx, o.UserID); err != nil {
		return nil, r.finish(ctx, evt.ID, EventFailed, errors.Wrap(err, "clear cart"))
	}

	now := r.now()
	inv := &Invoice{
		OrderID: o.ID,
		Number:  fmt.Sprintf("INV-%d-%s", now.UnixMilli(), order.RandomSuffix(9)),
		DueDate: now.AddDate(0, 0, 30),
		Status:  "paid",
	}
	if err := r.invoices.Create(ctx, inv); err != nil {
		return nil, r.finish(ctx, evt.ID, EventFailed, errors.Wrap(err, "create invoice"))
	}

	r.lg.Info("payment reconciled",
		zap.String("order_number", o.Number), zap.Int64("event_id", evt.ID))
	return o, r.finish(ctx, evt.ID, EventProcessed, nil)
}

// finish records the event's terminal status and passes the handling error
// through. Status bookkeeping failures are logged, not surfaced: the event
// row already exists and the original outcome matters more.
func (r *Reconciler) finish(ctx context.Context, eventID int64, status EventStatus, cause error) error {
	if err := r.events.MarkStatus(ctx, eventID, status); err != nil {
		r.lg.Error("mark webhook event status",
			zap.Int64("event_id", eventID), zap.String("status", string(status)), zap.Error(err))
	}
	return cause
}
