package audit

import (
	"context"

	"github.com/volthome/volt-core/internal/infrastructure/logging"
)

// Recorder wraps a repository with fire-and-forget semantics. Callers
// record entries from request handlers after the main operation has
// committed; an insert failure is logged and swallowed.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
}

// NewRecorder creates a best-effort audit recorder.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record writes an audit entry, logging (not returning) any failure.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if r == nil || r.repo == nil {
		return
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Warn("audit write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err)
	}
}
