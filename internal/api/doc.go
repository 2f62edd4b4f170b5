// Package api provides the HTTP REST API and WebSocket event stream
// for monomed.
//
// It exposes the live device roster, session handshake state and
// monitoring queries to MQTT-less consumers, and relays device activity
// to WebSocket clients in real time.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
