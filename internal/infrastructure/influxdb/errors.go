package influxdb

import "errors"

// Sentinel errors for the time-series client. Match with errors.Is.
var (
	// ErrDisabled is returned by Connect when the influxdb block in
	// config has enabled: false. Callers treat it as "run without
	// time-series recording", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
