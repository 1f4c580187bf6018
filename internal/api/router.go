package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Device uplinks authenticate with the bearer identity token
		// inside the handler; the operator gate never applies here.
		r.Post("/ingest/standalone", s.handleIngestStandalone)
		r.Post("/ingest/gateway", s.handleIngestGateway)

		// Device registry
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.With(s.requireCapability(auth.CapDeviceManage)).Post("/", s.handleRegisterDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.With(s.requireCapability(auth.CapDeviceManage)).Patch("/availability", s.handleSetDeviceAvailability)
			})
		})

		// Phases and their schema, sessions, geofences and map feed
		r.Route("/phases", func(r chi.Router) {
			r.Get("/", s.handleListPhases)
			r.With(s.requireCapability(auth.CapPhaseManage)).Post("/", s.handleCreatePhase)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPhase)
				r.With(s.requireCapability(auth.CapPhaseManage)).Post("/end", s.handleEndPhase)

				r.Get("/fields", s.handleListPhaseFields)
				r.With(s.requireCapability(auth.CapSchemaManage)).Post("/fields", s.handleAddPhaseField)
				r.With(s.requireCapability(auth.CapSchemaManage)).Delete("/fields/{name}", s.handleRemovePhaseField)

				r.Get("/sessions", s.handleListPhaseSessions)
				r.With(s.requireCapability(auth.CapSessionManage)).Post("/sessions", s.handleAttachDevice)

				r.Get("/geofences", s.handleListGeofences)
				r.With(s.requireCapability(auth.CapGeofenceManage)).Post("/geofences", s.handleCreateGeofence)

				r.Get("/map/positions", s.handleMapPositions)
			})
		})

		// Sessions
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.With(s.requireCapability(auth.CapSessionManage)).Patch("/lifecycle", s.handleSetLifecycle)
			r.With(s.requireCapability(auth.CapSessionManage)).Delete("/", s.handleDetachDevice)
			r.With(s.requireCapability(auth.CapSessionManage)).Post("/token/rotate", s.handleRotateToken)

			r.Get("/graph", s.handleGraph)
			r.Get("/records", s.handleListRecords)
		})

		// Geofences addressed directly
		r.Route("/geofences/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetGeofence)
			r.With(s.requireCapability(auth.CapGeofenceManage)).Put("/", s.handleUpdateGeofence)
			r.With(s.requireCapability(auth.CapGeofenceManage)).Delete("/", s.handleDeleteGeofence)
		})

		// Live feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
