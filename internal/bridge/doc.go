// Package bridge relays device activity to MQTT and MQTT commands back
// to devices.
//
// Outbound, the bridge publishes JSON documents under the monome/
// namespace: a retained state document per device, input events (key,
// delta, tilt) as they arrive, and lifecycle events for attach, detach,
// handshake completion and link changes. Inbound, it subscribes to
// per-device command topics and relays decoded OSC messages through the
// session's generic send primitive, so any LED, ring or system address
// is reachable without the bridge knowing device geometry.
//
// The MQTT client is an interface so tests can run against a fake
// without a broker.
package bridge
