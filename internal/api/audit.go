package api

import (
	"net/http"
	"strconv"

	"github.com/hearthhq/hearth-core/internal/audit"
)

// handleListAudit returns a filtered page of the audit trail.
//
//	GET /api/v1/audit?event_type=call_service&domain=light&user_id=usr-1&limit=50&offset=0
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("event_type"),
		Domain:    q.Get("domain"),
		UserID:    q.Get("user_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
