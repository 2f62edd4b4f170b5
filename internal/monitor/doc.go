// Package monitor records device lifecycle and traffic observations to
// SQLite, with optional forwarding of input events to InfluxDB.
//
// The recorder is passive: it observes announcements, handshake
// completions, link state changes and application messages, and turns
// them into three kinds of records:
//
//   - devices: one row per (serial, port) pair with the latest known
//     geometry and attachment state
//   - device_events: an append-only lifecycle log with JSON payloads
//   - device_traffic: per-address message counters giving visibility
//     into which devices and addresses are live
//
// Nothing in the recorder feeds back into protocol behaviour; it is an
// observation tool, not restored state.
package monitor
