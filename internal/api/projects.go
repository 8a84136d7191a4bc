package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/volthome/volt-core/internal/audit"
)

// handleListProjects returns the user's alive projects.
//
// GET /v1/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.engine.Projects().List(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": projects})
}

// handleCreateProject creates a new empty project at version 1.
//
// POST /v1/projects {"name": "...", "note": "..."}
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var req struct {
		Name string `json:"name"`
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.engine.Projects().Create(r.Context(), uid, req.Name, req.Note)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionProjectCreate,
		EntityType: "project",
		EntityID:   p.ID,
		UserID:     uid,
	})

	writeJSON(w, http.StatusCreated, p)
}

// handleGetProject returns project metadata including its version.
//
// GET /v1/projects/{id}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Projects().GetMeta(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProject renames a project or updates its note. Absent
// fields keep their stored values.
//
// PATCH /v1/projects/{id} {"name": ..., "note": ...}
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	projectID := chi.URLParam(r, "id")

	var req struct {
		Name *string `json:"name"`
		Note *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.engine.Projects().UpdateMeta(r.Context(), uid, projectID, req.Name, req.Note)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionProjectUpdate,
		EntityType: "project",
		EntityID:   p.ID,
		UserID:     uid,
	})

	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProject tombstones a project. Child rows stay untouched;
// the project tombstone hides the whole tree.
//
// DELETE /v1/projects/{id}
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	projectID := chi.URLParam(r, "id")

	p, err := s.engine.Projects().SoftDelete(r.Context(), uid, projectID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), &audit.Entry{
		Action:     audit.ActionProjectDelete,
		EntityType: "project",
		EntityID:   p.ID,
		UserID:     uid,
	})

	if s.mqtt != nil {
		if err := s.mqtt.AnnounceProjectDeleted(p.ID); err != nil {
			s.logger.Warn("project deletion announcement failed", "project_id", p.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleProjectTree returns a full snapshot of the project: metadata
// plus every alive room, group, and device.
//
// GET /v1/projects/{id}/tree
func (s *Server) handleProjectTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.engine.Projects().Tree(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tree)
}
