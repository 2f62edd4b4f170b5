package osc

import (
	"fmt"
	"strings"
)

// Kind identifies the wire type of a Value. The constants match the OSC
// type-tag characters so encoding a tag string is a direct cast.
type Kind byte

// Supported OSC type tags.
const (
	// KindInt32 is a 4-byte big-endian signed integer ('i').
	KindInt32 Kind = 'i'

	// KindFloat32 is a 4-byte big-endian IEEE 754 float ('f').
	KindFloat32 Kind = 'f'

	// KindString is a null-terminated, 4-byte-padded string ('s').
	KindString Kind = 's'
)

// Value is a closed tagged union of the argument types the serialosc
// protocol uses. The zero Value is invalid; construct values with Int32,
// Float32 or String so the wire type is always explicit.
//
// Numeric values are never inferred from their runtime representation:
// a caller that means float32(2.0) gets an 'f' tag, not an 'i' tag.
type Value struct {
	kind Kind
	i    int32
	f    float32
	s    string
}

// Int32 returns a Value carrying a 4-byte signed integer.
func Int32(v int32) Value {
	return Value{kind: KindInt32, i: v}
}

// Float32 returns a Value carrying a 4-byte IEEE float.
func Float32(v float32) Value {
	return Value{kind: KindFloat32, f: v}
}

// String returns a Value carrying a null-terminated padded string.
func String(v string) Value {
	return Value{kind: KindString, s: v}
}

// Kind returns the wire type of the value. A zero Value reports Kind 0.
func (v Value) Kind() Kind {
	return v.kind
}

// Int returns the int32 payload. Valid only when Kind() == KindInt32.
func (v Value) Int() int32 {
	return v.i
}

// Float returns the float32 payload. Valid only when Kind() == KindFloat32.
func (v Value) Float() float32 {
	return v.f
}

// Str returns the string payload. Valid only when Kind() == KindString.
func (v Value) Str() string {
	return v.s
}

// String returns a human-readable representation of the value.
func (v Value) String() string {
	switch v.kind {
	case KindInt32:
		return fmt.Sprintf("%d", v.i)
	case KindFloat32:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	default:
		return "<invalid>"
	}
}

// Message is a single OSC message: an address pattern plus an ordered
// argument list.
type Message struct {
	// Address is the OSC address pattern (e.g. "/sys/port").
	// Must begin with '/'.
	Address string

	// Args holds the typed arguments in wire order. May be empty.
	Args []Value
}

// NewMessage constructs a Message for the given address and arguments.
func NewMessage(address string, args ...Value) Message {
	return Message{Address: address, Args: args}
}

// String returns a human-readable representation of the message.
func (m Message) String() string {
	if len(m.Args) == 0 {
		return m.Address
	}
	parts := make([]string, len(m.Args))
	for i, a := range m.Args {
		parts[i] = a.String()
	}
	return m.Address + " " + strings.Join(parts, " ")
}
