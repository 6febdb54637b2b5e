package handler

import (
	"encoding/json"
	"net/http"
)

type dispatchCandidatesRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radius_km"`
	Limit    int     `json:"limit,omitempty"`
}

type dispatchCandidateResponse struct {
	CourierID  string  `json:"courier_id"`
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
	Score      float64 `json:"score"`
	Rating     float64 `json:"rating"`
}

func (h *Handler) handleDispatchCandidates(w http.ResponseWriter, r *http.Request) {
	var req dispatchCandidatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RadiusKm <= 0 {
		writeError(w, http.StatusBadRequest, "radius_km must be positive")
		return
	}

	candidates, err := h.matcher.FindCandidates(r.Context(), req.Lat, req.Lng, req.RadiusKm, req.Limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]dispatchCandidateResponse, len(candidates))
	for i, c := range candidates {
		out[i] = dispatchCandidateResponse{
			CourierID:  c.ID,
			Name:       c.Name,
			DistanceKm: c.DistanceKm,
			ETAMinutes: c.ETAMinutes,
			Score:      c.Score,
			Rating:     c.Rating,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

type dispatchAssignRequest struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
}

func (h *Handler) handleDispatchAssign(w http.ResponseWriter, r *http.Request) {
	var req dispatchAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" || req.CourierID == "" {
		writeError(w, http.StatusBadRequest, "order_id and courier_id are required")
		return
	}

	if err := h.matcher.Assign(r.Context(), req.OrderID, req.CourierID); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), req.OrderID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "courier assigned"})
}

type dispatchCompleteRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) handleDispatchComplete(w http.ResponseWriter, r *http.Request) {
	var req dispatchCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	if err := h.matcher.CompleteDelivery(r.Context(), req.OrderID); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), req.OrderID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "delivery completed"})
}
