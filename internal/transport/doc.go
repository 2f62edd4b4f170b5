// Package transport provides the UDP datagram layer that OSC messages
// ride on: a Sender bound to one fixed target, a Receiver owning one
// listening socket and its receive loop, and the address-keyed handler
// Registry the receive loop dispatches into.
//
// UDP offers no delivery, ordering or retransmission guarantees and the
// transport does not add any; sends are fire-and-forget and errors are
// surfaced synchronously to the caller of Send, never retried.
package transport
