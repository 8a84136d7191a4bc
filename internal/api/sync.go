package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/volthome/volt-core/internal/audit"
	"github.com/volthome/volt-core/internal/project"
)

// handleBatch applies a client batch to a project.
//
// POST /v1/projects/{id}/batch
// {"baseVersion": 3, "ops": {"rooms": {"upsert": [...], "delete": [...]}, ...}}
//
// The batch always applies when valid; a stale baseVersion only adds
// informational conflict entries to the response.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	projectID := chi.URLParam(r, "id")

	var req project.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	start := time.Now()
	result, err := s.engine.ApplyBatch(r.Context(), uid, projectID, &req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	duration := time.Since(start)

	upserts, deletes := req.Counts()
	if s.metrics != nil {
		s.metrics.WriteBatchMetric(projectID, upserts, deletes, len(result.Conflicts), duration)
	}

	// Wake-up hint for the user's other devices. Best-effort: sync
	// correctness never depends on the announcement arriving.
	if s.mqtt != nil {
		if err := s.mqtt.AnnounceProjectVersion(projectID, result.NewVersion); err != nil {
			s.logger.Warn("version announcement failed", "project_id", projectID, "error", err)
		}
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionBatchApply,
		EntityType: "project",
		EntityID:   projectID,
		UserID:     uid,
		Details: map[string]any{
			"baseVersion": req.BaseVersion,
			"upserts":     upserts,
			"deletes":     deletes,
			"newVersion":  result.NewVersion,
			"conflicts":   len(result.Conflicts),
		},
	})

	writeJSON(w, http.StatusOK, result)
}

// handleDelta returns all project rows changed at or after the given
// instant, partitioned into upserts and tombstoned ids.
//
// GET /v1/projects/{id}/delta?since=2026-01-01T00:00:00Z
//
// A missing or unparseable since defaults to the epoch, which returns
// the full history including tombstones.
func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	projectID := chi.URLParam(r, "id")

	since := time.Unix(0, 0).UTC()
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			since = t
		}
	}

	start := time.Now()
	delta, err := s.engine.Delta(r.Context(), uid, projectID, since)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.WriteDeltaMetric(projectID, delta.EntityCount(), delta.TombstoneCount(), time.Since(start))
	}

	writeJSON(w, http.StatusOK, delta)
}
