package monome

import (
	"strings"

	"github.com/wrenfield/monome-core/internal/osc"
)

// InputType identifies the kind of control event a device emitted.
type InputType int

// Input event types.
const (
	// InputKey is a grid key press or release.
	InputKey InputType = iota
	// InputEncoderDelta is an arc encoder rotation step.
	InputEncoderDelta
	// InputEncoderKey is an arc encoder push press or release.
	InputEncoderKey
	// InputTilt is an accelerometer reading from a tilt-capable grid.
	InputTilt
)

// String returns the wire-friendly event type name.
func (t InputType) String() string {
	switch t {
	case InputKey:
		return "key"
	case InputEncoderDelta:
		return "delta"
	case InputEncoderKey:
		return "enc_key"
	case InputTilt:
		return "tilt"
	default:
		return "unknown"
	}
}

// InputEvent is a decoded control event from a device. Which fields are
// meaningful depends on Type:
//
//	InputKey          X, Y, State
//	InputEncoderDelta Encoder, Delta
//	InputEncoderKey   Encoder, State
//	InputTilt         Sensor, TiltX, TiltY, TiltZ
type InputEvent struct {
	Type InputType

	X     int
	Y     int
	State int

	Encoder int
	Delta   int

	Sensor int
	TiltX  int
	TiltY  int
	TiltZ  int
}

// ParseInput decodes an application message received under the given
// prefix into an InputEvent. It returns false for addresses outside the
// input set and for messages whose argument shape does not match the
// address, so callers can feed every relayed message through without
// pre-filtering.
func ParseInput(prefix string, msg osc.Message) (InputEvent, bool) {
	suffix, ok := strings.CutPrefix(msg.Address, normalizePrefix(prefix))
	if !ok {
		return InputEvent{}, false
	}

	switch suffix {
	case "/grid/key":
		x, okX := argInt(msg, 0)
		y, okY := argInt(msg, 1)
		s, okS := argInt(msg, 2)
		if !okX || !okY || !okS || len(msg.Args) != 3 {
			return InputEvent{}, false
		}
		return InputEvent{Type: InputKey, X: int(x), Y: int(y), State: int(s)}, true

	case "/enc/delta":
		n, okN := argInt(msg, 0)
		d, okD := argInt(msg, 1)
		if !okN || !okD || len(msg.Args) != 2 {
			return InputEvent{}, false
		}
		return InputEvent{Type: InputEncoderDelta, Encoder: int(n), Delta: int(d)}, true

	case "/enc/key":
		n, okN := argInt(msg, 0)
		s, okS := argInt(msg, 1)
		if !okN || !okS || len(msg.Args) != 2 {
			return InputEvent{}, false
		}
		return InputEvent{Type: InputEncoderKey, Encoder: int(n), State: int(s)}, true

	case "/tilt":
		n, okN := argInt(msg, 0)
		x, okX := argInt(msg, 1)
		y, okY := argInt(msg, 2)
		z, okZ := argInt(msg, 3)
		if !okN || !okX || !okY || !okZ || len(msg.Args) != 4 {
			return InputEvent{}, false
		}
		return InputEvent{Type: InputTilt, Sensor: int(n), TiltX: int(x), TiltY: int(y), TiltZ: int(z)}, true

	default:
		return InputEvent{}, false
	}
}
