package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfield/monome-core/internal/monome"
	"github.com/wrenfield/monome-core/internal/osc"
)

// Lifecycle event types published to device event topics.
const (
	EventAdded        = "added"
	EventRemoved      = "removed"
	EventInitialized  = "initialized"
	EventConnected    = "connect"
	EventDisconnected = "disconnect"
)

// StateMessage is the retained per-device state document.
// Topic: monome/device/{serial}/state
type StateMessage struct {
	Serial      string    `json:"serial"`
	Port        int       `json:"port"`
	Model       string    `json:"model"`
	Kind        string    `json:"kind"`
	SizeX       int       `json:"size_x,omitempty"`
	SizeY       int       `json:"size_y,omitempty"`
	Encoders    int       `json:"encoders,omitempty"`
	Rotation    int       `json:"rotation"`
	Attached    bool      `json:"attached"`
	Initialized bool      `json:"initialized"`
	Timestamp   time.Time `json:"timestamp"`
}

// InputMessage is one decoded control event.
// Topic: monome/device/{serial}/input/{key|delta|tilt|enc_key}
type InputMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Serial    string    `json:"serial"`
	Type      string    `json:"type"`

	X     *int `json:"x,omitempty"`
	Y     *int `json:"y,omitempty"`
	State *int `json:"state,omitempty"`

	Encoder *int `json:"encoder,omitempty"`
	Delta   *int `json:"delta,omitempty"`

	Sensor *int `json:"sensor,omitempty"`
	TiltX  *int `json:"tilt_x,omitempty"`
	TiltY  *int `json:"tilt_y,omitempty"`
	TiltZ  *int `json:"tilt_z,omitempty"`
}

// EventMessage is one lifecycle event.
// Topic: monome/device/{serial}/event/{type}
type EventMessage struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Serial    string         `json:"serial"`
	Port      int            `json:"port"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// CommandArg is one explicitly typed OSC argument in a command.
// Type is the OSC type tag character: "i", "f" or "s". Argument types
// are never inferred from JSON value types.
type CommandArg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// CommandMessage asks the bridge to send one OSC message to a device.
// Topic: monome/device/{serial}/command
type CommandMessage struct {
	// Address is the OSC address to send, relative to nothing: callers
	// supply the full address including the session prefix.
	Address string `json:"address"`
	Args    []CommandArg `json:"args,omitempty"`
}

// newInputMessage builds the wire document for a decoded input event.
func newInputMessage(serial string, ev monome.InputEvent, now time.Time) InputMessage {
	msg := InputMessage{
		ID:        uuid.NewString(),
		Timestamp: now,
		Serial:    serial,
		Type:      ev.Type.String(),
	}
	switch ev.Type {
	case monome.InputKey:
		msg.X, msg.Y, msg.State = ref(ev.X), ref(ev.Y), ref(ev.State)
	case monome.InputEncoderDelta:
		msg.Encoder, msg.Delta = ref(ev.Encoder), ref(ev.Delta)
	case monome.InputEncoderKey:
		msg.Encoder, msg.State = ref(ev.Encoder), ref(ev.State)
	case monome.InputTilt:
		msg.Sensor = ref(ev.Sensor)
		msg.TiltX, msg.TiltY, msg.TiltZ = ref(ev.TiltX), ref(ev.TiltY), ref(ev.TiltZ)
	}
	return msg
}

// decodeCommand parses a command payload into an OSC address and
// argument list.
func decodeCommand(payload []byte) (string, []osc.Value, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return "", nil, fmt.Errorf("parsing command: %w", err)
	}
	if cmd.Address == "" || cmd.Address[0] != '/' {
		return "", nil, fmt.Errorf("command address must start with /")
	}

	args := make([]osc.Value, 0, len(cmd.Args))
	for i, arg := range cmd.Args {
		v, err := decodeArg(arg)
		if err != nil {
			return "", nil, fmt.Errorf("command arg %d: %w", i, err)
		}
		args = append(args, v)
	}
	return cmd.Address, args, nil
}

// decodeArg converts one typed JSON argument to an OSC value.
func decodeArg(arg CommandArg) (osc.Value, error) {
	switch arg.Type {
	case "i":
		var n int32
		if err := json.Unmarshal(arg.Value, &n); err != nil {
			return osc.Value{}, fmt.Errorf("expected integer value: %w", err)
		}
		return osc.Int32(n), nil
	case "f":
		var f float32
		if err := json.Unmarshal(arg.Value, &f); err != nil {
			return osc.Value{}, fmt.Errorf("expected float value: %w", err)
		}
		return osc.Float32(f), nil
	case "s":
		var s string
		if err := json.Unmarshal(arg.Value, &s); err != nil {
			return osc.Value{}, fmt.Errorf("expected string value: %w", err)
		}
		return osc.String(s), nil
	default:
		return osc.Value{}, fmt.Errorf("unknown arg type %q", arg.Type)
	}
}

func ref(n int) *int {
	return &n
}
