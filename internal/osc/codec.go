package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// padBoundary is the OSC alignment unit. Strings are null-terminated and
// zero-padded to the next multiple of this, numeric values are exactly
// this wide, so every well-formed message length is a multiple of it.
const padBoundary = 4

// Encode serialises a Message to OSC 1.0 wire form.
//
// The output is: padded address, padded type-tag string (",iif..."),
// then each argument payload in declared order. A message with no
// arguments still carries the empty tag string (",").
//
// Returns:
//   - []byte: Encoded message, length always a multiple of 4
//   - error: ErrInvalidArgument if the message cannot be represented
func Encode(m Message) ([]byte, error) {
	if m.Address == "" || m.Address[0] != '/' {
		return nil, fmt.Errorf("%w: address %q must begin with '/'", ErrInvalidArgument, m.Address)
	}
	if strings.IndexByte(m.Address, 0) >= 0 {
		return nil, fmt.Errorf("%w: address contains null byte", ErrInvalidArgument)
	}

	var buf bytes.Buffer
	writePaddedString(&buf, m.Address)

	// Type-tag string: one character per argument, prefixed with ','.
	tags := make([]byte, 0, len(m.Args)+1)
	tags = append(tags, ',')
	for _, a := range m.Args {
		switch a.kind {
		case KindInt32, KindFloat32, KindString:
			tags = append(tags, byte(a.kind))
		default:
			return nil, fmt.Errorf("%w: argument of unknown kind %d", ErrInvalidArgument, a.kind)
		}
	}
	writePaddedString(&buf, string(tags))

	for _, a := range m.Args {
		switch a.kind {
		case KindInt32:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(a.i))
			buf.Write(b[:])
		case KindFloat32:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(a.f))
			buf.Write(b[:])
		case KindString:
			if strings.IndexByte(a.s, 0) >= 0 {
				return nil, fmt.Errorf("%w: string argument contains null byte", ErrInvalidArgument)
			}
			writePaddedString(&buf, a.s)
		}
	}

	return buf.Bytes(), nil
}

// Decode parses an OSC 1.0 wire-form buffer into a Message.
//
// If no type-tag string follows the address (next byte absent or not
// ','), the message is returned with an empty argument list; serialosc
// uses this shape for zero-argument notifications, so it is not an
// error. Unknown tag characters are skipped without consuming payload
// bytes, matching the behaviour of the daemon's own parser.
//
// Returns:
//   - Message: Decoded address and arguments
//   - error: ErrTruncated if the buffer ends mid-string or mid-value
func Decode(data []byte) (Message, error) {
	address, rest, err := readPaddedString(data)
	if err != nil {
		return Message{}, fmt.Errorf("reading address: %w", err)
	}

	msg := Message{Address: address}
	if len(rest) == 0 || rest[0] != ',' {
		// No type-tag string: a valid zero-argument message.
		return msg, nil
	}

	tags, rest, err := readPaddedString(rest)
	if err != nil {
		return Message{}, fmt.Errorf("reading type tags: %w", err)
	}

	for _, tag := range []byte(tags[1:]) {
		switch tag {
		case 'i':
			if len(rest) < padBoundary {
				return Message{}, fmt.Errorf("%w: int32 argument needs 4 bytes, have %d", ErrTruncated, len(rest))
			}
			msg.Args = append(msg.Args, Int32(int32(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case 'f':
			if len(rest) < padBoundary {
				return Message{}, fmt.Errorf("%w: float32 argument needs 4 bytes, have %d", ErrTruncated, len(rest))
			}
			msg.Args = append(msg.Args, Float32(math.Float32frombits(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case 's':
			var s string
			s, rest, err = readPaddedString(rest)
			if err != nil {
				return Message{}, fmt.Errorf("reading string argument: %w", err)
			}
			msg.Args = append(msg.Args, String(s))
		default:
			// Unknown tag: no payload consumed.
		}
	}

	return msg, nil
}

// writePaddedString writes s, a terminating null byte, then zero padding
// up to the next 4-byte boundary.
func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	pad := padBoundary - buf.Len()%padBoundary
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
}

// readPaddedString reads a null-terminated padded string from the front
// of data and returns it together with the remaining bytes.
func readPaddedString(data []byte) (s string, rest []byte, err error) {
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", nil, fmt.Errorf("%w: unterminated string", ErrTruncated)
	}

	// Consume the string, its terminator and the alignment padding.
	consumed := (end + padBoundary) &^ (padBoundary - 1)
	if consumed > len(data) {
		return "", nil, fmt.Errorf("%w: string padding missing", ErrTruncated)
	}

	return string(data[:end]), data[consumed:], nil
}
