package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wrenfield/monome-core/internal/infrastructure/config"
	"github.com/wrenfield/monome-core/internal/infrastructure/logging"
	"github.com/wrenfield/monome-core/internal/monome"
)

// fakeSession implements SessionInfo.
type fakeSession struct {
	state  monome.State
	prefix string
	port   int
	stats  monome.SessionStats
}

func (f *fakeSession) State() monome.State        { return f.state }
func (f *fakeSession) Prefix() string             { return f.prefix }
func (f *fakeSession) Port() int                  { return f.port }
func (f *fakeSession) Stats() monome.SessionStats { return f.stats }

// fakeDevices implements DeviceSource.
type fakeDevices struct {
	devices  []*monome.Device
	sessions map[monome.Key]*fakeSession
}

func (f *fakeDevices) Devices() []*monome.Device { return f.devices }

func (f *fakeDevices) Session(key monome.Key) (SessionInfo, bool) {
	s, ok := f.sessions[key]
	if !ok {
		return nil, false
	}
	return s, true
}

// fakeChecker implements HealthChecker.
type fakeChecker struct {
	err error
}

func (f *fakeChecker) HealthCheck(context.Context) error { return f.err }

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Path:           "/ws",
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}
}

// testServer builds a server with fakes and a live hub, without
// starting the HTTP listener.
func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()

	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.WS.Path == "" {
		deps.WS = testWSConfig()
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(ctx)
	s.started = time.Now()
	return s
}

func gridDevice() *monome.Device {
	return &monome.Device{
		ID:         "m0000226",
		Model:      "monome 128",
		Kind:       monome.KindGrid,
		DeviceHost: "127.0.0.1",
		DevicePort: 14656,
		SizeX:      16,
		SizeY:      8,
	}
}

func arcDevice() *monome.Device {
	return &monome.Device{
		ID:         "m1100404",
		Model:      "arc 4",
		Kind:       monome.KindArc,
		DeviceHost: "127.0.0.1",
		DevicePort: 17447,
		Encoders:   4,
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Devices: &fakeDevices{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without device source should fail")
	}
}

func TestListDevices(t *testing.T) {
	grid := gridDevice()
	src := &fakeDevices{
		devices: []*monome.Device{grid, arcDevice()},
		sessions: map[monome.Key]*fakeSession{
			grid.Key(): {state: monome.StateConnected, prefix: "/monome", port: 18003},
		},
	}
	s := testServer(t, Deps{Devices: src})

	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Devices []DeviceStatus `json:"devices"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if body.Count != 2 || len(body.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", body.Count, len(body.Devices))
	}

	var grid128 *DeviceStatus
	for i := range body.Devices {
		if body.Devices[i].Serial == "m0000226" {
			grid128 = &body.Devices[i]
		}
	}
	if grid128 == nil {
		t.Fatal("grid device missing from response")
	}
	if grid128.Kind != "grid" || grid128.SizeX != 16 || grid128.SizeY != 8 {
		t.Errorf("grid = %+v", grid128)
	}
	if grid128.Session == nil || grid128.Session.State != "connected" || grid128.Session.Prefix != "/monome" {
		t.Errorf("grid session = %+v", grid128.Session)
	}
}

func TestGetDevice(t *testing.T) {
	src := &fakeDevices{devices: []*monome.Device{gridDevice()}}
	s := testServer(t, Deps{Devices: src})
	router := s.buildRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices/m0000226", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices/m9999999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeviceHistoryUnavailableWithoutMonitor(t *testing.T) {
	s := testServer(t, Deps{Devices: &fakeDevices{}})
	router := s.buildRouter()

	for _, path := range []string{
		"/api/v1/devices/m0000226/events",
		"/api/v1/devices/m0000226/traffic",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]HealthChecker
		wantStatus string
	}{
		{
			name:       "no components",
			wantStatus: "ok",
		},
		{
			name: "all healthy",
			checkers: map[string]HealthChecker{
				"database": &fakeChecker{},
				"mqtt":     &fakeChecker{},
			},
			wantStatus: "ok",
		},
		{
			name: "one failing",
			checkers: map[string]HealthChecker{
				"database": &fakeChecker{},
				"mqtt":     &fakeChecker{err: fmt.Errorf("connection refused")},
			},
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, Deps{Devices: &fakeDevices{}, Checkers: tt.checkers, Version: "test"})

			rec := httptest.NewRecorder()
			s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body struct {
				Status     string            `json:"status"`
				Version    string            `json:"version"`
				Components map[string]string `json:"components"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshalling response: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Version != "test" {
				t.Errorf("version = %q", body.Version)
			}
			if len(body.Components) != len(tt.checkers) {
				t.Errorf("components = %v", body.Components)
			}
		})
	}
}

func TestStats(t *testing.T) {
	grid := gridDevice()
	src := &fakeDevices{
		devices: []*monome.Device{grid, arcDevice()},
		sessions: map[monome.Key]*fakeSession{
			grid.Key(): {
				state: monome.StateConnected,
				stats: monome.SessionStats{Sent: 7, Received: 42},
			},
		},
	}
	s := testServer(t, Deps{Devices: src})

	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if stats["devices"] != float64(2) {
		t.Errorf("devices = %v, want 2", stats["devices"])
	}
	if stats["sessions_connected"] != float64(1) {
		t.Errorf("sessions_connected = %v, want 1", stats["sessions_connected"])
	}
	if stats["messages_sent"] != float64(7) {
		t.Errorf("messages_sent = %v, want 7", stats["messages_sent"])
	}
	if stats["messages_received"] != float64(42) {
		t.Errorf("messages_received = %v, want 42", stats["messages_received"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := testServer(t, Deps{Devices: &fakeDevices{}})
	router := s.buildRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated X-Request-ID missing")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("X-Request-ID = %q, want caller-supplied", got)
	}
}

func TestWebSocketSubscribeAndBroadcast(t *testing.T) {
	s := testServer(t, Deps{Devices: &fakeDevices{}})
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceInput}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("writing subscribe: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	s.hub.Broadcast(ChannelDeviceInput, map[string]any{"serial": "m0000226", "type": "key"})

	//nolint:errcheck // Deadline guards the read below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelDeviceInput {
		t.Errorf("event = %+v", event)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["serial"] != "m0000226" {
		t.Errorf("payload = %v", event.Payload)
	}

	// An unsubscribed channel is not delivered; the ping keeps the
	// read loop honest afterwards.
	s.hub.Broadcast(ChannelDeviceEvent, map[string]any{"serial": "other"})
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("expected pong, got %+v (unsubscribed broadcast leaked?)", pong)
	}
}
