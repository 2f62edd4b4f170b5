package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/wrenfield/monome-core/internal/monome"
)

// healthCheckTimeout bounds each component check so one stuck
// dependency cannot stall the endpoint.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status and per-component
// results. The endpoint returns 200 with status "degraded" rather than
// failing outright when a component check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checkers))

	names := make([]string, 0, len(s.checkers))
	for name := range s.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checkers[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleStats returns live counters for the daemon.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	devices := s.devices.Devices()
	connected := 0
	var sent, received, dropped uint64
	for _, d := range devices {
		session, ok := s.devices.Session(d.Key())
		if !ok {
			continue
		}
		if session.State() == monome.StateConnected {
			connected++
		}
		st := session.Stats()
		sent += st.Sent
		received += st.Received
		dropped += st.Dropped
	}

	stats := map[string]any{
		"devices":            len(devices),
		"sessions_connected": connected,
		"messages_sent":      sent,
		"messages_received":  received,
		"datagrams_dropped":  dropped,
		"ws_clients":         s.hub.ClientCount(),
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
	}

	if s.monitor != nil {
		traffic, err := s.monitor.Traffic(r.Context(), "")
		if err != nil {
			s.logger.Warn("querying traffic for stats failed", "error", err)
		} else {
			var total int64
			for _, t := range traffic {
				total += t.Count
			}
			stats["messages_recorded"] = total
			stats["addresses_seen"] = len(traffic)
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
