package monome

import "errors"

// Domain errors for the monome package.
var (
	// ErrAlreadyStarted is returned when Start is called on a session
	// that is already running.
	ErrAlreadyStarted = errors.New("monome: session already started")

	// ErrStopped is returned when an operation is attempted on a
	// stopped session.
	ErrStopped = errors.New("monome: session stopped")

	// ErrHandshakeTimeout is surfaced through the error callback when a
	// handshake watchdog is configured and the device does not complete
	// the /sys exchange in time. With the default configuration (no
	// watchdog) an unresponsive device leaves the session waiting
	// indefinitely.
	ErrHandshakeTimeout = errors.New("monome: handshake timed out")
)
