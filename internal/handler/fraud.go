package handler

import (
	"encoding/json"
	"net/http"
)

type fraudCheckRequest struct {
	OrderID string `json:"order_id"`
}

type fraudCheckResponse struct {
	OrderID        string   `json:"order_id"`
	RiskScore      int      `json:"risk_score"`
	RiskLevel      string   `json:"risk_level"`
	Flags          []string `json:"flags"`
	Recommendation string   `json:"recommendation"`
}

func (h *Handler) handleFraudCheck(w http.ResponseWriter, r *http.Request) {
	var req fraudCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	assessment, err := h.scorer.Score(r.Context(), req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flags := assessment.Flags
	if flags == nil {
		flags = []string{}
	}
	writeJSON(w, http.StatusOK, fraudCheckResponse{
		OrderID:        assessment.OrderID,
		RiskScore:      assessment.Score,
		RiskLevel:      string(assessment.Level),
		Flags:          flags,
		Recommendation: string(assessment.Recommendation),
	})
}
