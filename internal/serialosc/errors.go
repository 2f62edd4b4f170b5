package serialosc

import "errors"

// Domain errors for the serialosc package.
var (
	// ErrAlreadyStarted is returned when Start is called on a running
	// client.
	ErrAlreadyStarted = errors.New("serialosc: client already started")

	// ErrStopped is returned when an operation is attempted on a
	// stopped client.
	ErrStopped = errors.New("serialosc: client stopped")
)
