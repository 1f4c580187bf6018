package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
)

// handleListPhaseSessions returns every session bound to the phase.
func (s *Server) handleListPhaseSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListByPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// handleAttachDevice binds a device to the phase under an alias. The
// response carries the identity token exactly once, at attach time;
// it is never readable again.
func (s *Server) handleAttachDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Alias    string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.sessions.Attach(r.Context(), chi.URLParam(r, "id"), req.DeviceID, req.Alias)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"session": sess}
	if sess.IdentityToken != nil {
		resp["identity_token"] = *sess.IdentityToken
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleGetSession returns a single session by ID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSetLifecycle moves a session between inactive and active.
// Archived is terminal and only reachable through detach or phase end.
func (s *Server) handleSetLifecycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lifecycle session.Lifecycle `json:"lifecycle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.sessions.SetLifecycle(r.Context(), id, req.Lifecycle); err != nil {
		writeDomainError(w, err)
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDetachDevice archives the session and releases its device.
func (s *Server) handleDetachDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Detach(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleRotateToken issues a fresh identity token, revoking the old one.
func (s *Server) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.sessions.RotateToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity_token": token})
}

// handleGraph returns a bucketed metric graph for the session.
//
// Query parameters:
//   - metric: temperature or battery (required)
//   - range: minute, hour, day, week, or month (required)
//   - points: bucket count (default 12)
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	points := 12
	if raw := q.Get("points"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "points must be an integer")
			return
		}
		points = parsed
	}

	graph, err := s.stats.Graph(
		r.Context(),
		chi.URLParam(r, "id"),
		stats.Metric(q.Get("metric")),
		stats.Range(q.Get("range")),
		points,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// defaultRecordsWindow bounds an unqualified records query.
const defaultRecordsWindow = 24 * time.Hour

// handleListRecords returns the session's raw telemetry records.
//
// Query parameters:
//   - from, to: RFC3339 bounds (default: the last 24 hours)
//   - limit: maximum rows returned
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	to := time.Now().UTC()
	from := to.Add(-defaultRecordsWindow)
	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			writeBadRequest(w, "from must be RFC3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			writeBadRequest(w, "to must be RFC3339")
			return
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
	}

	records, err := s.telemetry.ListWindow(r.Context(), chi.URLParam(r, "id"), from, to, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}
