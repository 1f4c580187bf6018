package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrace/fieldtrace-core/internal/phase"
)

// handleListPhases returns every monitoring phase.
func (s *Server) handleListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := s.phases.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list phases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": phases, "count": len(phases)})
}

// handleCreatePhase starts a new monitoring phase. The four default
// schema fields are declared automatically.
func (s *Server) handleCreatePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	p := &phase.Phase{Name: req.Name}
	if err := s.phases.Create(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetPhase returns a single phase by ID.
func (s *Server) handleGetPhase(w http.ResponseWriter, r *http.Request) {
	p, err := s.phases.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleEndPhase ends a phase: the phase row is closed, every session
// is archived, and the devices return to the available pool.
func (s *Server) handleEndPhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := s.phases.End(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	archived, err := s.sessions.EndPhase(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phase_id":          id,
		"sessions_archived": archived,
	})
}

// handleListPhaseFields returns the phase's telemetry field schema,
// default fields included.
func (s *Server) handleListPhaseFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.phases.ListFields(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields, "count": len(fields)})
}

// handleAddPhaseField declares a custom telemetry field.
func (s *Server) handleAddPhaseField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string          `json:"name"`
		Type        phase.FieldType `json:"type"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	f := &phase.FieldDef{
		PhaseID:     chi.URLParam(r, "id"),
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
	}
	if err := s.phases.AddField(r.Context(), f); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// handleRemovePhaseField removes a custom field from the schema. The
// default fields cannot be removed.
func (s *Server) handleRemovePhaseField(w http.ResponseWriter, r *http.Request) {
	err := s.phases.RemoveField(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleMapPositions returns the latest known position of every session
// in the phase, for the live map.
func (s *Server) handleMapPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.telemetry.LatestPositions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, "failed to load positions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "count": len(positions)})
}
