package handler

import (
	"encoding/json"
	"net/http"

	"github.com/velmart/storefront/internal/domain/auth"
	"github.com/velmart/storefront/internal/domain/checkout"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/storage/rediscache"
)

type checkoutItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	CartItems       []checkoutItemRequest `json:"cart_items"`
	ShippingAddress order.Address         `json:"shipping_address"`
	DiscountCode    string                `json:"discount_code,omitempty"`
}

type checkoutResponse struct {
	OrderID          string `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	TotalAmount      string `json:"total_amount"`
	DiscountAmount   string `json:"discount_amount"`
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ShippingAddress.FullName == "" || req.ShippingAddress.Street == "" ||
		req.ShippingAddress.City == "" || req.ShippingAddress.Country == "" {
		writeError(w, http.StatusBadRequest, "shipping address incomplete")
		return
	}

	items := make([]checkout.CartItem, len(req.CartItems))
	for i, it := range req.CartItems {
		items[i] = checkout.CartItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID:          session.UserID,
		Email:           session.Email,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		DiscountCode:    req.DiscountCode,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), result.Order.ID, rediscache.OrderStatus{
			OwnerID:       result.Order.UserID,
			Status:        string(result.Order.Status),
			PaymentStatus: string(result.Order.PaymentStatus),
			UpdatedAt:     result.Order.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		OrderID:          result.Order.ID,
		OrderNumber:      result.Order.Number,
		TotalAmount:      result.Order.TotalAmount.StringFixed(2),
		DiscountAmount:   result.Order.DiscountAmount.StringFixed(2),
		AuthorizationURL: result.Payment.AuthorizationURL,
		Reference:        result.Payment.Reference,
	})
}
