package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/volthome/volt-core/internal/auth"
	"github.com/volthome/volt-core/internal/billing"
	"github.com/volthome/volt-core/internal/project"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeDBTimeout    = "db_timeout"
	ErrCodeStoreFailed  = "rustore_unavailable"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps sentinel errors from the domain packages onto
// HTTP responses. Client mistakes are 400s, missing or foreign-owned
// resources are 404s, store pressure is a retryable 503.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, project.ErrValidation),
		errors.Is(err, project.ErrReferential),
		errors.Is(err, project.ErrGroupUnresolved),
		errors.Is(err, project.ErrConstraint):
		writeBadRequest(w, err.Error())

	case errors.Is(err, project.ErrNotFound):
		writeNotFound(w, "not found")

	case errors.Is(err, project.ErrTransientStore):
		writeError(w, http.StatusServiceUnavailable, ErrCodeDBTimeout, "store timeout, retry the request")

	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrSessionRevoked),
		errors.Is(err, auth.ErrSessionExpired):
		writeUnauthorized(w, err.Error())

	case errors.Is(err, billing.ErrInvalidPurchase):
		writeError(w, http.StatusBadGateway, "invalid_purchase", err.Error())

	case errors.Is(err, billing.ErrStoreUnavailable):
		writeError(w, http.StatusBadGateway, ErrCodeStoreFailed, err.Error())

	default:
		s.logger.Error("unhandled request error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
