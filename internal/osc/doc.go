// Package osc implements the Open Sound Control 1.0 binary message codec
// used by serialosc and monome devices.
//
// Only the message shapes the serialosc protocol actually uses are
// supported: an address pattern plus int32 ('i'), float32 ('f') and
// string ('s') arguments. Bundles and the extended OSC type set are not
// part of the protocol and are not implemented.
//
// The codec is strict about the 4-byte alignment rules of the wire
// format: every encoded message has a length that is a multiple of four,
// and strings (including the address) are null-terminated then zero-padded
// to the next 4-byte boundary.
package osc
