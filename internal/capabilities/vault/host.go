package vault

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the vault capability into a component template, following
// the open/use/drop handle protocol of spec.md §4.6. Every function is
// marshaled through internal/hostabi's numeric ABI, the same convention
// internal/capabilities/kv uses.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:vault/vault" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	open := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		lockerID, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		locker, err := h.Backend.Open(ctx, lockerID)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(locker).Pack())
	})

	get := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		locker, err := restable.Get[Locker](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		secretID, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		value, ok, err := locker.Get(ctx, secretID)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if !ok {
			return hostabi.NotFound()
		}
		return hostabi.OK(hostabi.StoreBlob(store, value))
	})

	set := hostabi.Def(5, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		locker, err := restable.Get[Locker](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		secretID, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		value, err := hostabi.ReadBuf(mod, args, 3)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := locker.Set(ctx, secretID, value); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	del := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		locker, err := restable.Get[Locker](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		secretID, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := locker.Delete(ctx, secretID); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	exists := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		locker, err := restable.Get[Locker](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		secretID, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		found, err := locker.Exists(ctx, secretID)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.Bool(found))
	})

	listIDs := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		locker, err := restable.Get[Locker](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		ids, err := locker.ListIDs(ctx)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(ids)))
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"open":     open,
		"get":      get,
		"set":      set,
		"delete":   del,
		"exists":   exists,
		"list-ids": listIDs,
		"drop":     drop,
	})
}
