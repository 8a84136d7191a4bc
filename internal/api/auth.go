package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/volthome/volt-core/internal/audit"
)

// clientMeta extracts the user agent and client IP for session records.
func clientMeta(r *http.Request) (userAgent, ip string) {
	userAgent = r.UserAgent()

	ip = r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// First hop is the client when behind a trusted proxy.
		if i := strings.IndexByte(ip, ','); i >= 0 {
			ip = ip[:i]
		}
		ip = strings.TrimSpace(ip)
	} else {
		ip = r.RemoteAddr
		if i := strings.LastIndexByte(ip, ':'); i >= 0 {
			ip = ip[:i]
		}
	}
	return userAgent, ip
}

// handleLogin issues a token pair and records the refresh session.
//
// POST /v1/auth/login {"userId": "..."}
//
// The caller is trusted to have authenticated the user upstream
// (federated identity); this endpoint exchanges a user id for tokens.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}

	userAgent, ip := clientMeta(r)
	pair, err := s.auth.Login(r.Context(), req.UserID, userAgent, ip)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: "session",
		UserID:     req.UserID,
	})

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh session and returns a fresh pair.
//
// POST /v1/auth/refresh {"refreshToken": "..."}
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	userAgent, ip := clientMeta(r)
	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, userAgent, ip)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the session behind a refresh token. Idempotent:
// unknown tokens succeed.
//
// POST /v1/auth/logout {"refreshToken": "..."}
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLogoutAll revokes every active session of the authenticated user.
//
// POST /v1/auth/logout_all
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.auth.LogoutAll(r.Context(), uid); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionLogout,
		EntityType: "session",
		UserID:     uid,
		Details:    map[string]any{"scope": "all"},
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
