package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/wrenfield/monome-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "monomed-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Connection State Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Validation Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 5, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		actual   string
		expected string
	}{
		{
			name:     "device state",
			actual:   topics.DeviceState("m0000226"),
			expected: "monome/device/m0000226/state",
		},
		{
			name:     "device input key",
			actual:   topics.DeviceInput("m0000226", "key"),
			expected: "monome/device/m0000226/input/key",
		},
		{
			name:     "device input delta",
			actual:   topics.DeviceInput("m0000311", "delta"),
			expected: "monome/device/m0000311/input/delta",
		},
		{
			name:     "device command",
			actual:   topics.DeviceCommand("m0000226"),
			expected: "monome/device/m0000226/command",
		},
		{
			name:     "device event added",
			actual:   topics.DeviceEvent("m0000226", "added"),
			expected: "monome/device/m0000226/event/added",
		},
		{
			name:     "system status",
			actual:   topics.SystemStatus(),
			expected: "monome/system/status",
		},
		{
			name:     "system shutdown",
			actual:   topics.SystemShutdown(),
			expected: "monome/system/shutdown",
		},
		{
			name:     "all device states",
			actual:   topics.AllDeviceStates(),
			expected: "monome/device/+/state",
		},
		{
			name:     "all device inputs",
			actual:   topics.AllDeviceInputs(),
			expected: "monome/device/+/input/+",
		},
		{
			name:     "all device commands",
			actual:   topics.AllDeviceCommands(),
			expected: "monome/device/+/command",
		},
		{
			name:     "all device events",
			actual:   topics.AllDeviceEvents(),
			expected: "monome/device/+/event/+",
		},
		{
			name:     "all topics",
			actual:   topics.AllTopics(),
			expected: "monome/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("got %q, want %q", tt.actual, tt.expected)
			}
		})
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "monouser"
	cfg.Auth.Password = "monopass"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "monomed-test" {
		t.Errorf("ClientID = %q, want monomed-test", opts.ClientID)
	}
	if opts.Username != "monouser" {
		t.Errorf("Username = %q, want monouser", opts.Username)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("broker scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Error("expected TLS config to be set")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("expected will to be enabled")
	}
	if opts.WillTopic != "monome/system/status" {
		t.Errorf("WillTopic = %q, want monome/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("expected will to be retained")
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not valid JSON: %v", err)
	}
	if payload.Status != statusOffline {
		t.Errorf("will status = %q, want offline", payload.Status)
	}
	if payload.Reason != reasonUnexpected {
		t.Errorf("will reason = %q, want %q", payload.Reason, reasonUnexpected)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		reason     string
		wantReason bool
	}{
		{"online", statusOnline, "", false},
		{"graceful offline", statusOffline, reasonShutdown, true},
		{"crash offline", statusOffline, reasonUnexpected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := buildStatusPayload(tt.status, "monomed-test", tt.reason)
			if err != nil {
				t.Fatalf("buildStatusPayload() error = %v", err)
			}

			var decoded statusPayload
			if err := json.Unmarshal(payload, &decoded); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if decoded.Status != tt.status {
				t.Errorf("status = %q, want %q", decoded.Status, tt.status)
			}
			if decoded.ClientID != "monomed-test" {
				t.Errorf("client_id = %q, want monomed-test", decoded.ClientID)
			}
			if decoded.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", decoded.Reason, tt.reason)
			}
			if hasReason := strings.Contains(string(payload), "reason"); hasReason != tt.wantReason {
				t.Errorf("reason field present = %v, want %v", hasReason, tt.wantReason)
			}
			if decoded.Timestamp == "" {
				t.Error("timestamp should be set")
			}
		})
	}
}
