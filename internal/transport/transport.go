// Package transport provides the WebSocket transport boundary: a narrow
// capability contract the duplex session sends through, with a real
// gorilla/websocket implementation and a trivial in-memory mock for tests.
package transport

import "context"

// Transport is the narrow seam between the duplex session and the wire.
// The real implementation wraps gorilla/websocket with reconnection, TLS,
// and heartbeat handled transparently; callers only ever see the three
// methods below.
type Transport interface {
	// SendText writes one frame. Returns an error if the connection is not
	// currently ready; callers must not block waiting for reconnection.
	SendText(ctx context.Context, data []byte) error
	// IsReady reports whether the connection is currently usable.
	IsReady() bool
	// Inbound returns the channel of raw inbound frames.
	Inbound() <-chan []byte
}
