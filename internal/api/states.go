package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth-core/internal/state"
)

// setStateRequest is the request body for POST /states/{entityID}.
type setStateRequest struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Force      bool           `json:"force,omitempty"`
}

// handleListStates returns all entity states, optionally filtered by domain.
//
//	GET /api/v1/states?domain=light
func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	var domains []string
	if d := r.URL.Query().Get("domain"); d != "" {
		domains = append(domains, d)
	}

	states := s.hub.States.All(domains...)
	out := make([]map[string]any, 0, len(states))
	for _, st := range states {
		out = append(out, st.AsMap())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"states": out,
		"count":  len(out),
	})
}

// handleGetState returns the state of a single entity.
//
//	GET /api/v1/states/{entityID}
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	st := s.hub.States.Get(entityID)
	if st == nil {
		writeNotFound(w, "entity not found: "+entityID)
		return
	}

	writeJSON(w, http.StatusOK, st.AsMap())
}

// handleSetState records a new state snapshot for an entity.
// A 201 is returned when the entity appears for the first time.
//
//	POST /api/v1/states/{entityID}
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.State == "" {
		writeBadRequest(w, "state is required")
		return
	}

	existed := s.hub.States.Get(entityID) != nil

	opts := []state.SetOption{state.WithContext(requestEventContext(r))}
	if req.Force {
		opts = append(opts, state.ForceUpdate())
	}

	st, err := s.hub.States.Set(entityID, req.State, req.Attributes, opts...)
	switch {
	case errors.Is(err, state.ErrInvalidEntityID):
		writeBadRequest(w, "invalid entity id: "+entityID)
		return
	case errors.Is(err, state.ErrInvalidState):
		writeBadRequest(w, "invalid state value")
		return
	case err != nil:
		writeInternalError(w, "failed to set state")
		return
	}

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	writeJSON(w, status, st.AsMap())
}

// handleRemoveState deletes an entity's state.
//
//	DELETE /api/v1/states/{entityID}
func (s *Server) handleRemoveState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	if !s.hub.States.Remove(entityID, state.WithContext(requestEventContext(r))) {
		writeNotFound(w, "entity not found: "+entityID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
