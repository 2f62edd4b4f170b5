package osc

import "errors"

// Domain errors for the osc package.
//
// Decode errors are checked with errors.Is() by the transport layer,
// which drops the offending datagram and keeps its receive loop running.
var (
	// ErrInvalidArgument is returned by Encode when a message cannot be
	// represented on the wire (empty address, embedded null byte in a
	// string, or a zero-valued argument of unknown kind).
	ErrInvalidArgument = errors.New("osc: invalid argument")

	// ErrTruncated is returned by Decode when the buffer ends before the
	// value promised by the type-tag string is complete.
	ErrTruncated = errors.New("osc: truncated message")
)
