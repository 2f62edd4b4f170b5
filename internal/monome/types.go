package monome

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind identifies the hardware family of a device. The kind determines
// which application addresses a session subscribes under its prefix,
// not any type hierarchy.
type Kind int

// Hardware families bridged by serialosc.
const (
	// KindGrid is a button matrix (64/128/256 and variants).
	KindGrid Kind = iota

	// KindArc is a rotary encoder ring array.
	KindArc
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindGrid:
		return "grid"
	case KindArc:
		return "arc"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// defaultArcEncoders is the encoder count assumed for arc models that
// do not state one; newer hardware identifies itself generically as
// "monome arc".
const defaultArcEncoders = 4

// arcModelPattern matches the word "arc" in a model string with an
// optional trailing encoder count ("monome arc 2", "monome arc").
// Word boundaries keep models like "monome arcade" from matching.
var arcModelPattern = regexp.MustCompile(`\barc\b ?(\d+)?`)

// ClassifyModel derives the device kind and encoder count from the
// model string of a daemon announcement.
//
// A model matching the arc pattern with a digit is an Arc with that
// many encoders; matching without a digit is an Arc with four encoders;
// anything else is a Grid (encoder count 0).
func ClassifyModel(model string) (Kind, int) {
	m := arcModelPattern.FindStringSubmatch(model)
	if m == nil {
		return KindGrid, 0
	}
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return KindArc, n
		}
	}
	return KindArc, defaultArcEncoders
}

// Device describes one device attached to the serialosc daemon.
//
// A descriptor is created on the first daemon announcement, updated in
// place by the session as /sys replies arrive (size, rotation), and
// removed when the daemon reports detachment. The identity key for
// deduplication is (ID, DevicePort).
type Device struct {
	// ID is the device serial (e.g. "m0000226").
	ID string

	// Model is the daemon-reported model string (e.g. "monome 128").
	Model string

	// Kind is the hardware family derived from Model.
	Kind Kind

	// DaemonHost and DaemonPort locate the daemon the announcement
	// came from.
	DaemonHost string
	DaemonPort int

	// DeviceHost and DevicePort locate the device's own UDP endpoint,
	// where the /sys handshake is performed.
	DeviceHost string
	DevicePort int

	// SizeX and SizeY are the grid dimensions, learned from /sys/size.
	// Zero until the handshake reports them; always zero for arcs.
	SizeX int
	SizeY int

	// Encoders is the encoder count for arcs; zero for grids.
	Encoders int

	// Rotation is the cable orientation in degrees, learned from
	// /sys/rotation.
	Rotation int
}

// Key is the deduplication identity of a device: serial plus the port
// the device listens on. Two announcements with the same key refer to
// the same physical device.
type Key struct {
	ID   string
	Port int
}

// Key returns the device's deduplication key.
func (d *Device) Key() Key {
	return Key{ID: d.ID, Port: d.DevicePort}
}

// String returns a short human-readable description of the device.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) @ %s:%d", d.ID, d.Model, d.DeviceHost, d.DevicePort)
}
