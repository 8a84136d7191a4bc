package api

import (
	"encoding/json"
	"net/http"

	"github.com/volthome/volt-core/internal/audit"
	"github.com/volthome/volt-core/internal/billing"
)

// handleBillingStatus returns the user's current plan.
//
// GET /v1/billing/status
func (s *Server) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	plan, sub, err := s.billing.Status(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := billing.StatusNone
	var productID *string
	if sub != nil {
		status = sub.Status
		productID = &sub.ProductID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                    true,
		"plan":                  plan.Name,
		"status":                status,
		"productId":             productID,
		"periodEndEpochSeconds": plan.UntilEpochSeconds,
	})
}

// handleBillingConfirm verifies a RuStore purchase and stores the
// subscription. Confirming the same order twice is safe.
//
// POST /v1/billing/rustore/confirm
// {"productId": "...", "orderId": "...", "purchaseToken": "..."}
func (s *Server) handleBillingConfirm(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var req struct {
		ProductID     string `json:"productId"`
		OrderID       string `json:"orderId"`
		PurchaseToken string `json:"purchaseToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ProductID == "" || req.OrderID == "" || req.PurchaseToken == "" {
		writeBadRequest(w, "productId, orderId and purchaseToken are required")
		return
	}

	sub, err := s.billing.Confirm(r.Context(), uid, req.ProductID, req.OrderID, req.PurchaseToken)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionPurchase,
		EntityType: "subscription",
		EntityID:   sub.ID,
		UserID:     uid,
		Details:    map[string]any{"orderId": sub.OrderID, "status": string(sub.Status)},
	})

	plan := billing.DerivePlan(sub)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                    true,
		"plan":                  plan.Name,
		"status":                sub.Status,
		"productId":             sub.ProductID,
		"periodEndEpochSeconds": plan.UntilEpochSeconds,
	})
}
