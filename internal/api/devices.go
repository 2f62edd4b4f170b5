package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wrenfield/monome-core/internal/monome"
)

// DeviceStatus is the wire representation of one attached device.
type DeviceStatus struct {
	Serial   string `json:"serial"`
	Port     int    `json:"port"`
	Model    string `json:"model"`
	Kind     string `json:"kind"`
	SizeX    int    `json:"size_x,omitempty"`
	SizeY    int    `json:"size_y,omitempty"`
	Encoders int    `json:"encoders,omitempty"`
	Rotation int    `json:"rotation"`

	Session *SessionStatus `json:"session,omitempty"`
}

// SessionStatus describes the handshake state of a device's session.
type SessionStatus struct {
	State      string `json:"state"`
	Prefix     string `json:"prefix"`
	ListenPort int    `json:"listen_port"`
}

// handleListDevices returns all currently attached devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.deviceStatuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns the attachments for one serial. A serial can
// appear on more than one port across replug races, so the response is
// a list.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	matches := make([]DeviceStatus, 0, 1)
	for _, d := range s.devices.Devices() {
		if d.ID == serial {
			matches = append(matches, s.statusFor(d))
		}
	}
	if len(matches) == 0 {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": matches,
		"count":   len(matches),
	})
}

// handleDeviceEvents returns the lifecycle log for a serial.
//
// Query parameters:
//   - limit: maximum entries to return (default 50, max 200)
func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeUnavailable(w, "monitoring is disabled")
		return
	}
	serial := chi.URLParam(r, "serial")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.monitor.Events(r.Context(), serial, limit)
	if err != nil {
		s.logger.Error("querying device events failed", "serial", serial, "error", err)
		writeInternalError(w, "failed to query device events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleDeviceTraffic returns the per-address message counters for a
// serial.
func (s *Server) handleDeviceTraffic(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeUnavailable(w, "monitoring is disabled")
		return
	}
	serial := chi.URLParam(r, "serial")

	traffic, err := s.monitor.Traffic(r.Context(), serial)
	if err != nil {
		s.logger.Error("querying device traffic failed", "serial", serial, "error", err)
		writeInternalError(w, "failed to query device traffic")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"traffic": traffic,
		"count":   len(traffic),
	})
}

// deviceStatuses snapshots the live roster.
func (s *Server) deviceStatuses() []DeviceStatus {
	devices := s.devices.Devices()
	statuses := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		statuses = append(statuses, s.statusFor(d))
	}
	return statuses
}

// statusFor builds the wire representation for one device, including
// session state when a session exists.
func (s *Server) statusFor(d *monome.Device) DeviceStatus {
	status := DeviceStatus{
		Serial:   d.ID,
		Port:     d.DevicePort,
		Model:    d.Model,
		Kind:     d.Kind.String(),
		SizeX:    d.SizeX,
		SizeY:    d.SizeY,
		Encoders: d.Encoders,
		Rotation: d.Rotation,
	}
	if session, ok := s.devices.Session(d.Key()); ok {
		status.Session = &SessionStatus{
			State:      session.State().String(),
			Prefix:     session.Prefix(),
			ListenPort: session.Port(),
		}
	}
	return status
}
