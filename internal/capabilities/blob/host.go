package blob

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the blob capability into a component template, following the
// open/use/drop handle protocol of spec.md §4.6. Every function is
// marshaled through internal/hostabi's numeric ABI, the same convention
// internal/capabilities/kv uses.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:blobstore/container" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	open := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		name, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		c, err := h.Backend.Open(ctx, name)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(c).Pack())
	})

	getData := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		data, err := c.GetData(ctx, key)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, data))
	})

	writeData := hostabi.Def(5, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		data, err := hostabi.ReadBuf(mod, args, 3)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := c.WriteData(ctx, key, data); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	listObjects := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		prefix, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		infos, err := c.ListObjects(ctx, prefix)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(infos)))
	})

	deleteObject := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		if err := c.DeleteObject(ctx, key); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	hasObject := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		found, err := c.HasObject(ctx, key)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.Bool(found))
	})

	objectInfo := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		c, err := restable.Get[Container](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		key, err := hostabi.ReadString(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		info, err := c.ObjectInfo(ctx, key)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(info)))
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"open":          open,
		"get-data":      getData,
		"write-data":    writeData,
		"list-objects":  listObjects,
		"delete-object": deleteObject,
		"has-object":    hasObject,
		"object-info":   objectInfo,
		"drop":          drop,
	})
}
