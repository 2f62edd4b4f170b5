// Package monome models the devices the serialosc daemon bridges,
// grid button matrices and arc encoder rings, and runs the per-device
// /sys handshake that must complete before a device is usable.
//
// A device cannot push events to an endpoint it does not know about.
// The Session therefore tells the device where this client listens
// (/sys/port then /sys/host), pulls the remaining static configuration
// with /sys/info, and only then reports itself initialised. UDP gives
// no ordering guarantee, so the acknowledgments for port, host, size
// and rotation are tracked as an order-independent pending set rather
// than a linear sequence.
package monome
