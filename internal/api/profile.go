package api

import (
	"encoding/json"
	"net/http"

	"github.com/volthome/volt-core/internal/profile"
)

// profileResponse is the GET /v1/profile/me payload: the stored profile
// plus the plan derived from the user's active subscription.
type profileResponse struct {
	UID               string `json:"uid"`
	DisplayName       string `json:"displayName"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatarUrl"`
	Plan              string `json:"plan"`
	PlanUntilEpochSec *int64 `json:"planUntilEpochSeconds"`
}

// handleGetProfile returns the user's profile with their current plan.
// Billing failures degrade to the free plan instead of failing the
// request; the profile itself must still load.
//
// GET /v1/profile/me
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	p, err := s.profiles.Get(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	plan, _, err := s.billing.Status(r.Context(), uid)
	if err != nil {
		s.logger.Warn("plan lookup failed, serving free", "user_id", uid, "error", err)
		plan.Name = "free"
		plan.UntilEpochSeconds = nil
	}

	writeJSON(w, http.StatusOK, profileResponse{
		UID:               uid,
		DisplayName:       p.DisplayName,
		Email:             p.Email,
		AvatarURL:         p.AvatarURL,
		Plan:              plan.Name,
		PlanUntilEpochSec: plan.UntilEpochSeconds,
	})
}

// handleUpdateProfile merges a partial profile update. Plan fields in
// the body are ignored: entitlement comes from verified purchases only.
//
// PUT /v1/profile/me {"displayName": ..., "email": ..., "avatarUrl": ...}
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var update profile.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	saved, err := s.profiles.Upsert(r.Context(), uid, update)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"profile": map[string]any{
			"uid":         uid,
			"displayName": saved.DisplayName,
			"email":       saved.Email,
			"avatarUrl":   saved.AvatarURL,
		},
	})
}
