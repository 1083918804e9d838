package messaging

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the messaging capability into a component template, per
// spec.md §3's Client ("subscribe -> stream of Message, send(topic,
// Message), request(topic, Message, options) -> Message") and §4.6.4's
// immutable-message mutation discipline. Every function is marshaled
// through internal/hostabi's numeric ABI, the same convention
// internal/capabilities/kv uses; RequestOptions and the metadata map cross
// as gob-encoded buffers.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:messaging/types" }

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

	send := hostabi.Def(4, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		client, err := restable.Get[Client](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		topic, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 3))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := client.Send(ctx, topic, msg); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	request := hostabi.Def(6, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		client, err := restable.Get[Client](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		topic, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 3))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		optsBuf, err := hostabi.ReadBuf(mod, args, 4)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var opts RequestOptions
		if err := hostabi.DecodeGob(optsBuf, &opts); err != nil {
			return hostabi.Fail(store, err)
		}
		reply, err := client.Request(ctx, topic, msg, opts)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(reply).Pack())
	})

	newMessage := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		data, err := hostabi.ReadBuf(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(&Message{Payload: data, Metadata: map[string]string{}})
		return hostabi.OK(handle.Pack())
	})

	setContentType := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		contentType, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(msg.WithContentType(contentType))
		return hostabi.OK(handle.Pack())
	})

	setPayload := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		data, err := hostabi.ReadBuf(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(msg.WithPayload(data))
		return hostabi.OK(handle.Pack())
	})

	addMetadata := hostabi.Def(5, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		value, err := hostabi.ReadString(mod, args, 3)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(msg.WithAddedMetadata(key, value))
		return hostabi.OK(handle.Pack())
	})

	setMetadata := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		metaBuf, err := hostabi.ReadBuf(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var meta map[string]string
		if err := hostabi.DecodeGob(metaBuf, &meta); err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(msg.WithMetadata(meta))
		return hostabi.OK(handle.Pack())
	})

	removeMetadata := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		msg, err := restable.Get[*Message](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(msg.WithoutMetadata(key))
		return hostabi.OK(handle.Pack())
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"connect":          connect,
		"send":             send,
		"request":          request,
		"new":              newMessage,
		"set-content-type": setContentType,
		"set-data":         setPayload,
		"add-metadata":     addMetadata,
		"set-metadata":     setMetadata,
		"remove-metadata":  removeMetadata,
		"drop":             drop,
	})
}
