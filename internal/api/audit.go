package api

import (
	"net/http"
	"strconv"

	"github.com/volthome/volt-core/internal/audit"
)

// handleListAudit returns the requester's own activity, newest first.
// Action and entity filters narrow the result; other users' entries are
// never visible.
//
// GET /v1/audit?action=batch.apply&limit=50&offset=0
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeJSON(w, http.StatusOK, &audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     userID(r),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
