package kv

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the KV capability into a component template, following the
// open/use/drop handle protocol of spec.md §4.6. Every function is
// marshaled through internal/hostabi's numeric ABI: wazero's real
// host-function boundary only carries i64 words, never Go strings,
// []byte, or restable.Handle directly.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:keyvalue/store" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	open := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		name, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		bucket, err := h.Backend.Open(ctx, name)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(bucket).Pack())
	})

	get := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		bucket, err := restable.Get[Bucket](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		value, ok, err := bucket.Get(ctx, key)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if !ok {
			return hostabi.NotFound()
		}
		return hostabi.OK(hostabi.StoreBlob(store, value))
	})

	set := hostabi.Def(6, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		bucket, err := restable.Get[Bucket](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		value, err := hostabi.ReadBuf(mod, args, 3)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		ttl := time.Duration(args[5])
		if err := bucket.Set(ctx, key, value, ttl); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	del := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		bucket, err := restable.Get[Bucket](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := bucket.Delete(ctx, key); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	exists := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		bucket, err := restable.Get[Bucket](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		found, err := bucket.Exists(ctx, key)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.Bool(found))
	})

	keys := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		bucket, err := restable.Get[Bucket](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		prefix, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		keys, err := bucket.Keys(ctx, prefix)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(keys)))
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"open":   open,
		"get":    get,
		"set":    set,
		"delete": del,
		"exists": exists,
		"keys":   keys,
		"drop":   drop,
	})
}
