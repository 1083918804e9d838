package websocket

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the WebSocket capability's outbound send path into a
// component template. The inbound accept loop is a separate Server,
// implemented by Server in server.go, per spec.md §4.2's "a server
// capability ... exposes run(state)". Every function is marshaled through
// internal/hostabi's numeric ABI, the same convention
// internal/capabilities/kv uses; the peer subset crosses as a gob-encoded
// buffer.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:websocket/client" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	connect := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		name, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		client, err := h.Backend.Connect(ctx, name)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(client).Pack())
	})

	newEvent := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		data, err := hostabi.ReadBuf(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(&Event{Data: data})
		return hostabi.OK(handle.Pack())
	})

	send := hostabi.Def(4, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		client, err := restable.Get[Client](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		evt, err := restable.Get[*Event](store.Resources, hostabi.Handle(args, 1))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		socketsBuf, err := hostabi.ReadBuf(mod, args, 2)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var sockets []string
		if err := hostabi.DecodeGob(socketsBuf, &sockets); err != nil {
			return hostabi.Fail(store, err)
		}
		if err := client.Send(ctx, evt, sockets); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"connect": connect,
		"new":     newEvent,
		"send":    send,
		"drop":    drop,
	})
}
