// Package handler exposes the fulfillment pipeline over HTTP. Handlers stay
// thin: decode, delegate to a domain service, map errors to status codes.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/velmart/storefront/internal/domain/checkout"
	"github.com/velmart/storefront/internal/domain/discount"
	"github.com/velmart/storefront/internal/domain/dispatch"
	"github.com/velmart/storefront/internal/domain/fraud"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/domain/payment"
	"github.com/velmart/storefront/internal/domain/reservation"
	"github.com/velmart/storefront/internal/storage/rediscache"
)

// StatusCache is the read-through cache for order status lookups. Every
// state transition the API applies must invalidate the affected entry, or
// the polling endpoint keeps serving the stale status until the TTL runs
// out.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (*rediscache.OrderStatus, bool)
	Set(ctx context.Context, orderID string, s rediscache.OrderStatus)
	Invalidate(ctx context.Context, orderID string)
}

// Handler holds the domain services behind the HTTP surface.
type Handler struct {
	checkout   *checkout.Service
	reconciler *payment.Reconciler
	scorer     *fraud.Scorer
	matcher    *dispatch.Matcher
	orders     order.Repository
	cache      StatusCache // nil when Redis is not configured
	jwtSecret  []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// cache may be nil; order reads then always hit the database.
func NewHandler(
	checkoutSvc *checkout.Service,
	reconciler *payment.Reconciler,
	scorer *fraud.Scorer,
	matcher *dispatch.Matcher,
	orders order.Repository,
	cache StatusCache,
	jwtSecret []byte,
) *Handler {
	return &Handler{
		checkout:   checkoutSvc,
		reconciler: reconciler,
		scorer:     scorer,
		matcher:    matcher,
		orders:     orders,
		cache:      cache,
		jwtSecret:  jwtSecret,
	}
}

// Routes mounts the API on the given router.
func (h *Handler) Routes(r chi.Router) {
	// The webhook is unauthenticated; its gate is the body signature.
	r.Post("/payments/webhook", h.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.jwtSecret))
		r.Post("/checkout", h.handleCheckout)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Get("/orders/{id}/status", h.handleGetOrderStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/fraud-check", h.handleFraudCheck)
			r.Post("/dispatch/candidates", h.handleDispatchCandidates)
			r.Post("/dispatch/assign", h.handleDispatchAssign)
			r.Post("/dispatch/complete", h.handleDispatchComplete)
		})
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeDomainError maps checkout/domain failures onto the HTTP taxonomy.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		unavailable  *checkout.ProductUnavailableError
		outOfStock   *checkout.InsufficientStockError
		reserveShort *reservation.InsufficientStockError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unavailable),
		errors.As(err, &outOfStock),
		errors.As(err, &reserveShort):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, dispatch.ErrCourierUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, discount.ErrNotFound):
		// Discount problems degrade inside checkout; reaching here means a
		// storage fault.
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
