// Package checkout orchestrates the cart-to-pending-order sequence: price
// the cart, persist the order, reserve stock, open a payment session. Every
// step after the order insert has a compensating action so a failed checkout
// leaves no partial state behind.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velmart/storefront/internal/domain/catalog"
	"github.com/velmart/storefront/internal/domain/discount"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/domain/payment"
	"github.com/velmart/storefront/internal/domain/reservation"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart       = errors.New("cart items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductUnavailableError indicates a cart references a product that is
// missing or inactive.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s not found or inactive", e.ProductID)
}

// InsufficientStockError indicates a product cannot cover the requested
// quantity at validation time.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// CartItem is one requested line of a checkout.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Request holds the input for a checkout attempt. UserID and Email come from
// the authenticated session, never the request body.
type Request struct {
	UserID          string
	Email           string
	Items           []CartItem
	ShippingAddress order.Address
	DiscountCode    string
}

// Result is a successfully initiated checkout: the pending order and the
// payment session the customer is redirected to.
type Result struct {
	Order   *order.Order
	Payment *payment.Session
}

// Service is the checkout orchestrator.
type Service struct {
	products     catalog.Repository
	discounts    discount.Repository
	orders       order.Repository
	reservations reservation.Manager
	gateway      payment.Gateway
	callbackURL  string
	ttl          time.Duration
	lg           *zap.Logger
	now          func() time.Time
}

// NewService creates a checkout Service. callbackURL is where the gateway
// redirects the customer after payment.
func NewService(
	products catalog.Repository,
	discounts discount.Repository,
	orders order.Repository,
	reservations reservation.Manager,
	gateway payment.Gateway,
	callbackURL string,
	lg *zap.Logger,
) *Service {
	return &Service{
		products:     products,
		discounts:    discounts,
		orders:       orders,
		reservations: reservations,
		gateway:      gateway,
		callbackURL:  callbackURL,
		ttl:          reservation.DefaultTTL,
		lg:           lg,
		now:          time.Now,
	}
}

// Checkout validates and prices the cart, persists the order, reserves
// stock, and opens a payment session. Any failure after the order insert
// rolls the order back before returning.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", item.ProductID)
		}
	}

	// Price every line from the catalog; fail before any write.
	items := make([]order.Item, 0, len(req.Items))
	lines := make([]reservation.Line, 0, len(req.Items))
	total := decimal.Zero
	for _, ci := range req.Items {
		p, err := s.products.GetByID(ctx, ci.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, &ProductUnavailableError{ProductID: ci.ProductID}
			}
			return nil, errors.Wrap(err, "get product")
		}
		if !p.IsActive {
			return nil, &ProductUnavailableError{ProductID: ci.ProductID}
		}
		if p.StockQuantity < ci.Quantity {
			return nil, &InsufficientStockError{
				ProductID: ci.ProductID,
				Requested: ci.Quantity,
				Available: p.StockQuantity,
			}
		}

		unitPrice := p.UnitPrice()
		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
		items = append(items, order.Item{
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			UnitPrice: unitPrice,
			Subtotal:  subtotal,
		})
		lines = append(lines, reservation.Line{ProductID: ci.ProductID, Quantity: ci.Quantity})
		total = total.Add(subtotal)
	}

	now := s.now()
	discountAmount, codeUsed := s.applyDiscount(ctx, req.DiscountCode, total, now)
	finalAmount := total.Sub(discountAmount).Round(2)

	o := &order.Order{
		ID:              uuid.New().String(),
		Number:          order.NewNumber(now),
		UserID:          req.UserID,
		Items:           items,
		TotalAmount:     finalAmount,
		DiscountAmount:  discountAmount,
		DiscountCode:    codeUsed,
		ShippingAddress: req.ShippingAddress,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		CreatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.reservations.Reserve(ctx, o.ID, req.UserID, lines, s.ttl); err != nil {
		s.rollback(ctx, o, false)
		return nil, errors.Wrap(err, "reserve stock")
	}

	session, err := s.gateway.Initialize(ctx, payment.InitializeRequest{
		Email:       req.Email,
		Amount:      finalAmount,
		Reference:   o.Number,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"order_id": o.ID,
			"user_id":  req.UserID,
		},
	})
	if err != nil {
		s.rollback(ctx, o, true)
		return nil, errors.Wrap(err, "initialize payment")
	}

	s.lg.Info("checkout initiated",
		zap.String("order_number", o.Number),
		zap.String("user_id", req.UserID),
		zap.String("total", finalAmount.String()))

	return &Result{Order: o, Payment: session}, nil
}

// applyDiscount resolves a discount code against the order total. An absent,
// inactive, expired, exhausted, or under-minimum code degrades to zero
// discount; it is never a checkout error.
func (s *Service) applyDiscount(ctx context.Context, code string, total decimal.Decimal, now time.Time) (decimal.Decimal, string) {
	if code == "" {
		return decimal.Zero, ""
	}
	dc, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, discount.ErrNotFound) {
			s.lg.Warn("discount lookup failed", zap.String("code", code), zap.Error(err))
		}
		return decimal.Zero, ""
	}
	if !dc.EligibleFor(total, now) {
		return decimal.Zero, ""
	}
	return dc.Amount(total), dc.Code
}

// rollback is the compensating action for a failed checkout: release any
// reservations, then delete the order and its items. It runs synchronously
// before the checkout error is returned.
func (s *Service) rollback(ctx context.Context, o *order.Order, releaseReservations bool) {
	if releaseReservations {
		if err := s.reservations.Release(ctx, o.ID); err != nil {
			s.lg.Error("rollback: release reservations",
				zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if err := s.orders.Delete(ctx, o.ID); err != nil {
		s.lg.Error("rollback: delete order",
			zap.String("order_id", o.ID), zap.Error(err))
	}
}
