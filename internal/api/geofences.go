package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
)

// handleListGeofences returns every geofence of the phase.
func (s *Server) handleListGeofences(w http.ResponseWriter, r *http.Request) {
	fences, err := s.geofences.ListForPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, "failed to list geofences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"geofences": fences, "count": len(fences)})
}

// handleCreateGeofence creates a geofence in the phase. The ring must
// be closed with at least three distinct vertices.
func (s *Server) handleCreateGeofence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string           `json:"name"`
		Ring []geofence.Point `json:"ring"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g, err := s.geofences.Create(r.Context(), chi.URLParam(r, "id"), req.Name, req.Ring)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// handleGetGeofence returns a single geofence by ID.
func (s *Server) handleGetGeofence(w http.ResponseWriter, r *http.Request) {
	g, err := s.geofences.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleUpdateGeofence rewrites a geofence's name, ring and active flag.
func (s *Server) handleUpdateGeofence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string           `json:"name"`
		Ring   []geofence.Point `json:"ring"`
		Active bool             `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g, err := s.geofences.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Ring, req.Active)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleDeleteGeofence removes a geofence and its tracked session state.
func (s *Server) handleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := s.geofences.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
