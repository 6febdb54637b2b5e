package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velmart/storefront/internal/domain/auth"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/storage/rediscache"
)

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Items           []orderItemResponse `json:"items"`
	TotalAmount     string              `json:"total_amount"`
	DiscountAmount  string              `json:"discount_amount"`
	DiscountCode    string              `json:"discount_code,omitempty"`
	ShippingAddress order.Address       `json:"shipping_address"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	CreatedAt       time.Time           `json:"created_at"`
}

type orderStatusResponse struct {
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if o.UserID != session.UserID && !session.IsAdmin() {
		// Indistinguishable from a missing order on purpose.
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Subtotal:  it.Subtotal.StringFixed(2),
		}
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), o.ID, rediscache.OrderStatus{
			OwnerID:       o.UserID,
			Status:        string(o.Status),
			PaymentStatus: string(o.PaymentStatus),
			UpdatedAt:     time.Now().UTC(),
		})
	}

	writeJSON(w, http.StatusOK, orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           items,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		DiscountAmount:  o.DiscountAmount.StringFixed(2),
		DiscountCode:    o.DiscountCode,
		ShippingAddress: o.ShippingAddress,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CreatedAt:       o.CreatedAt,
	})
}

// handleGetOrderStatus is the polling endpoint customers hit while waiting
// for the payment webhook to land. It reads through the Redis status cache
// so a burst of polls does not turn into a burst of database reads.
func (h *Handler) handleGetOrderStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		if st, ok := h.cache.Get(r.Context(), id); ok && st.OwnerID == session.UserID {
			writeJSON(w, http.StatusOK, orderStatusResponse{
				Status:        st.Status,
				PaymentStatus: st.PaymentStatus,
				UpdatedAt:     st.UpdatedAt,
			})
			return
		}
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if o.UserID != session.UserID && !session.IsAdmin() {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	now := time.Now().UTC()
	if h.cache != nil {
		h.cache.Set(r.Context(), o.ID, rediscache.OrderStatus{
			OwnerID:       o.UserID,
			Status:        string(o.Status),
			PaymentStatus: string(o.PaymentStatus),
			UpdatedAt:     now,
		})
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     now,
	})
}
