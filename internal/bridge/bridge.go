package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfield/monome-core/internal/infrastructure/logging"
	"github.com/wrenfield/monome-core/internal/infrastructure/mqtt"
	"github.com/wrenfield/monome-core/internal/monome"
	"github.com/wrenfield/monome-core/internal/osc"
)

// topicSerialIndex is the position of the serial segment in
// monome/device/{serial}/... topics.
const topicSerialIndex = 2

// MQTTClient is the broker surface the bridge uses. Satisfied by
// *mqtt.Client; tests substitute a fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// CommandSender sends one OSC message to a device. Satisfied by
// *monome.Session.
type CommandSender interface {
	Send(address string, args ...osc.Value) error
}

// SessionProvider resolves devices and their sessions. The runtime
// adapts *serialosc.Client to this interface; tests substitute fakes.
type SessionProvider interface {
	Devices() []*monome.Device
	Session(key monome.Key) (CommandSender, bool)
}

// Deps holds the dependencies required by the bridge.
type Deps struct {
	MQTT     MQTTClient
	Sessions SessionProvider
	Logger   *logging.Logger

	// QoS applies to all bridge publications. Default 0.
	QoS byte
}

// Bridge publishes device activity to MQTT and relays command topics
// back to device sessions.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	sessions SessionProvider
	logger   *logging.Logger
	qos      byte
	topics   mqtt.Topics

	mu      sync.Mutex
	started bool
}

// New creates a bridge from its dependencies.
func New(deps Deps) (*Bridge, error) {
	if deps.MQTT == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{
		mqtt:     deps.MQTT,
		sessions: deps.Sessions,
		logger:   logger,
		qos:      deps.QoS,
	}, nil
}

// Start subscribes to the command topic tree. Publications do not
// require Start; they only need a connected client.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	if err := b.mqtt.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	b.started = true
	b.logger.Info("bridge started", "commands", b.topics.AllDeviceCommands())
	return nil
}

// PublishState publishes the retained state document for a device.
// Detached devices are published with attached=false rather than
// cleared, so late subscribers can still see last known geometry.
func (b *Bridge) PublishState(d *monome.Device, attached, initialized bool) {
	msg := StateMessage{
		Serial:      d.ID,
		Port:        d.DevicePort,
		Model:       d.Model,
		Kind:        d.Kind.String(),
		SizeX:       d.SizeX,
		SizeY:       d.SizeY,
		Encoders:    d.Encoders,
		Rotation:    d.Rotation,
		Attached:    attached,
		Initialized: initialized,
		Timestamp:   time.Now().UTC(),
	}
	b.publishJSON(b.topics.DeviceState(d.ID), msg, true)
}

// PublishInput publishes one decoded input event.
func (b *Bridge) PublishInput(d *monome.Device, ev monome.InputEvent) {
	msg := newInputMessage(d.ID, ev, time.Now().UTC())
	b.publishJSON(b.topics.DeviceInput(d.ID, ev.Type.String()), msg, false)
}

// PublishEvent publishes one lifecycle event.
func (b *Bridge) PublishEvent(d *monome.Device, eventType string, payload map[string]any) {
	msg := EventMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Serial:    d.ID,
		Port:      d.DevicePort,
		EventType: eventType,
		Payload:   payload,
	}
	b.publishJSON(b.topics.DeviceEvent(d.ID, eventType), msg, false)
}

// handleCommand decodes a command payload and relays it to the serial's
// session. Unknown serials and malformed payloads are logged and
// dropped; command delivery shares UDP's fire-and-forget semantics.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	serial, ok := serialFromTopic(topic)
	if !ok {
		b.logger.Warn("command on malformed topic", "topic", topic)
		return nil
	}

	address, args, err := decodeCommand(payload)
	if err != nil {
		b.logger.Warn("dropping malformed command", "serial", serial, "error", err)
		return nil
	}

	session, ok := b.sessionForSerial(serial)
	if !ok {
		b.logger.Warn("command for unknown device", "serial", serial, "address", address)
		return nil
	}

	if err := session.Send(address, args...); err != nil {
		b.logger.Warn("command send failed", "serial", serial, "address", address, "error", err)
		return nil
	}
	b.logger.Debug("command relayed", "serial", serial, "address", address, "args", len(args))
	return nil
}

// sessionForSerial finds the session for a serial. When the same serial
// is attached on more than one port, the first match wins.
func (b *Bridge) sessionForSerial(serial string) (CommandSender, bool) {
	for _, d := range b.sessions.Devices() {
		if d.ID != serial {
			continue
		}
		if s, ok := b.sessions.Session(d.Key()); ok {
			return s, true
		}
	}
	return nil, false
}

// publishJSON marshals and publishes one document, logging failures.
func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("marshalling mqtt payload failed", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, data, b.qos, retained); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

// serialFromTopic extracts the serial segment from a device topic.
func serialFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) <= topicSerialIndex || parts[0] != mqtt.TopicPrefix || parts[1] != "device" {
		return "", false
	}
	if parts[topicSerialIndex] == "" {
		return "", false
	}
	return parts[topicSerialIndex], true
}
