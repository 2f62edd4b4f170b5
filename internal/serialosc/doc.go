// Package serialosc speaks the discovery side of the serialosc daemon
// protocol: device enumeration (/serialosc/list), hot-plug notification
// registration (/serialosc/notify) and the announcement, add and remove
// messages the daemon sends back.
//
// The daemon's notify registration is one-shot and does not persist
// across a list request, so the client refreshes it after every
// add/remove cycle. Discovered devices are deduplicated by
// (id, devicePort) and handed upward through callbacks; the client
// performs no per-device handshake itself unless auto-session mode is
// enabled, in which case it owns a monome.Session per device.
package serialosc
