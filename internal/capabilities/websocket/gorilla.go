package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

// Registry tracks every currently connected peer by socket address, so
// Client.Send can target a subset of peers or broadcast to all of them.
// Shared across every per-request store, per spec.md §5: "backend
// connections are shared across stores; each provides its own internal
// synchronization."
type Registry struct {
	mu    sync.Mutex
	peers map[string]*websocket.Conn
}

// NewRegistry returns an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*websocket.Conn)}
}

// Add registers a newly accepted peer connection.
func (r *Registry) Add(addr string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = conn
}

// Remove drops a peer, e.g. after it disconnects.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
}

// GorillaBackend implements Backend and Client over Registry.
type GorillaBackend struct {
	registry *Registry
}

// NewGorillaBackend returns a backend whose Client fans sends out through
// registry.
func NewGorillaBackend(registry *Registry) *GorillaBackend {
	return &GorillaBackend{registry: registry}
}

// Connect implements Backend; name is ignored, every connection shares
// the one process-wide peer registry.
func (b *GorillaBackend) Connect(ctx context.Context, name string) (Client, error) {
	return &gorillaClient{registry: b.registry}, nil
}

type gorillaClient struct {
	registry *Registry
}

// Send implements Client: sockets, when non-empty, targets that subset;
// an empty list broadcasts to every connected peer, per spec.md §3's
// "send(event, peers?)".
func (c *gorillaClient) Send(ctx context.Context, evt *Event, sockets []string) error {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()

	targets := sockets
	if len(targets) == 0 {
		targets = make([]string, 0, len(c.registry.peers))
		for addr := range c.registry.peers {
			targets = append(targets, addr)
		}
	}

	var firstErr error
	for _, addr := range targets {
		conn, ok := c.registry.peers[addr]
		if !ok {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, evt.Data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("websocket: sending to %s: %w", addr, err)
		}
	}
	if firstErr != nil {
		return apperr.BadGateway("websocket_send_failed", firstErr.Error())
	}
	return nil
}
