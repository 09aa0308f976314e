package api

import (
	"encoding/json"
	"net/http"

	"github.com/hearthhq/hearth-core/internal/hub"
)

// handleGetCoreConfig returns the installation-level configuration.
//
//	GET /api/v1/config
func (s *Server) handleGetCoreConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.CoreConfig())
}

// handleUpdateCoreConfig applies a full replacement of the installation
// configuration. Partial updates are done read-modify-write by clients.
//
//	POST /api/v1/config
func (s *Server) handleUpdateCoreConfig(w http.ResponseWriter, r *http.Request) {
	var cfg hub.CoreConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.hub.UpdateCoreConfig(cfg, requestEventContext(r)); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.hub.CoreConfig())
}
