package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/service"
)

// handleListServices returns all registered services grouped by domain.
//
//	GET /api/v1/services
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": s.hub.Services.Services(),
	})
}

// handleCallService invokes a registered service.
//
// The request body is passed to the handler as service data. With
// ?blocking=true the call waits for the handler (up to the configured
// call timeout) and reports whether it completed.
//
//	POST /api/v1/services/{domain}/{service}?blocking=true
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	svc := chi.URLParam(r, "service")

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	opts := []service.CallOption{
		service.WithContext(requestEventContext(r)),
		service.WithOrigin(event.OriginRemote),
	}
	blocking := r.URL.Query().Get("blocking") == "true"
	if blocking {
		opts = append(opts, service.Blocking())
	}

	completed, err := s.hub.Services.Call(r.Context(), domain, svc, data, opts...)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeNotFound(w, "unknown service: "+domain+"."+svc)
		return
	case errors.Is(err, service.ErrInvalidCall):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
		return
	case err != nil:
		s.logger.Error("service call failed", "domain", domain, "service", svc, "error", err)
		writeInternalError(w, "service call failed")
		return
	}

	if blocking {
		writeJSON(w, http.StatusOK, map[string]any{"completed": completed})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}
