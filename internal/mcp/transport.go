package mcp

import "context"

// Transport is the interface for MCP server communication.
// Implementations own the underlying channel (a subprocess's stdio or
// an HTTP endpoint), handle framing and encoding, and deliver inbound
// messages on a channel so the client can correlate responses while a
// background reader keeps the channel drained.
type Transport interface {
	// Start brings up the transport: for stdio this launches the
	// subprocess and begins the background read loop. It must be
	// called once, before Send.
	Start(ctx context.Context) error

	// Send writes one JSON-RPC message (*Request or *Notification).
	// It returns ErrTransportClosed once the transport has shut down.
	Send(ctx context.Context, msg any) error

	// Messages returns the inbound message channel. The channel is
	// closed when the transport shuts down or the far end goes away.
	// Lines that fail to decode are logged and skipped, never
	// delivered.
	Messages() <-chan *Message

	// Close shuts down the transport and releases resources. For
	// stdio transports this terminates the subprocess. Close is
	// idempotent.
	Close() error
}
