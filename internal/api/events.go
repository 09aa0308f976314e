package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth-core/internal/event"
)

// restrictedEventTypes are lifecycle events owned by the hub itself.
// Allowing external callers to forge them would corrupt shutdown
// sequencing, so the fire endpoint rejects them.
var restrictedEventTypes = map[string]struct{}{
	event.TypeHubStart:      {},
	event.TypeHubStarted:    {},
	event.TypeHubStop:       {},
	event.TypeHubFinalWrite: {},
	event.TypeHubClose:      {},
}

// handleListEvents returns listener counts per event type.
//
//	GET /api/v1/events
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	listeners := s.hub.Bus.Listeners()

	out := make([]map[string]any, 0, len(listeners))
	for eventType, count := range listeners {
		out = append(out, map[string]any{
			"event":          eventType,
			"listener_count": count,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// handleFireEvent fires an event on the bus with the request body as data.
//
//	POST /api/v1/events/{eventType}
func (s *Server) handleFireEvent(w http.ResponseWriter, r *http.Request) {
	eventType := chi.URLParam(r, "eventType")
	if eventType == "" {
		writeBadRequest(w, "event type is required")
		return
	}
	if _, restricted := restrictedEventTypes[eventType]; restricted {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "lifecycle events cannot be fired externally")
		return
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.hub.Bus.Fire(eventType, data,
		event.WithContext(requestEventContext(r)),
		event.WithOrigin(event.OriginRemote),
	)

	writeJSON(w, http.StatusOK, map[string]any{"fired": eventType})
}
