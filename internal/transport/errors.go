package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrResolve is returned when a hostname cannot be resolved to a
	// numeric address.
	ErrResolve = errors.New("transport: host resolution failed")

	// ErrPermissionDenied is returned when the OS refuses the socket or
	// send operation.
	ErrPermissionDenied = errors.New("transport: permission denied")

	// ErrConnectionRefused is returned when the target has no listener
	// (ICMP port unreachable surfaced by the OS on a connected socket).
	ErrConnectionRefused = errors.New("transport: connection refused")

	// ErrSend wraps any other OS-level send failure.
	ErrSend = errors.New("transport: send failed")

	// ErrListen is returned when the receiver socket cannot be bound.
	ErrListen = errors.New("transport: listen failed")
)
