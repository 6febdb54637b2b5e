package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/velmart/storefront/internal/domain/payment"
)

// handleWebhook receives payment gateway callbacks. The gateway retries on
// non-2xx, so only failures worth a retry return one.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	o, err := h.reconciler.Handle(r.Context(), body, r.Header.Get("x-signature"))
	switch {
	case err == nil:
		// A reconciled order just changed state; drop the cached status so
		// the next poll reads the paid order from the database.
		if o != nil && h.cache != nil {
			h.cache.Invalidate(r.Context(), o.ID)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
	case errors.Is(err, payment.ErrSignatureInvalid):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, payment.ErrVerificationFailed):
		writeError(w, http.StatusBadRequest, "verification failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
