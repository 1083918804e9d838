// Package websocket implements the WebSocket capability: an inbound
// server accepting peer connections, and a Client/Event capability object
// pair for sending data back out to connected peers, backed by
// gorilla/websocket.
//
// Grounded on original_source/crates/wasi-websocket/src/host/{types_impl,
// client_impl,server}.rs and spec.md §3's "WebSocket Client / Event:
// stream of inbound events; send(event, peers?)".
package websocket

import "context"

// Event is the capability object for one inbound WebSocket frame.
type Event struct {
	SocketAddr string
	Data       []byte
}

// Client is the capability object guests use to push data back out to
// connected peers. sockets, when non-empty, restricts delivery to that
// subset; an empty/nil list broadcasts to every currently connected peer.
type Client interface {
	Send(ctx context.Context, evt *Event, sockets []string) error
}

// Backend resolves a named client to the live connection registry. The
// default gorilla backend ignores the name and always returns the one
// shared peer registry for the process.
type Backend interface {
	Connect(ctx context.Context, name string) (Client, error)
}
