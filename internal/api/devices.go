package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtrace/fieldtrace-core/internal/device"
)

// handleListDevices returns all registered devices, optionally filtered
// by kind or availability.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		devices = filterDevices(devices, func(d device.Device) bool {
			return string(d.Kind) == kind
		})
	}
	if avail := r.URL.Query().Get("availability"); avail != "" {
		devices = filterDevices(devices, func(d device.Device) bool {
			return string(d.Availability) == avail
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func filterDevices(devices []device.Device, keep func(device.Device) bool) []device.Device {
	out := devices[:0]
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRegisterDevice registers a new device in the fleet.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string      `json:"name"`
		Kind device.Kind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.Register(r.Context(), req.Name, req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleSetDeviceAvailability moves a device between the available,
// inuse and unavailable pools.
func (s *Server) handleSetDeviceAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Availability device.Availability `json:"availability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.devices.SetAvailability(r.Context(), id, req.Availability); err != nil {
		writeDomainError(w, err)
		return
	}

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
