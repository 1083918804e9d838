package identity

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the identity capability into a component template. Every
// function is marshaled through internal/hostabi's numeric ABI, the same
// convention internal/capabilities/kv uses; scopes and AccessToken cross
// as gob-encoded buffers.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:identity/credentials" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	getIdentity := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		name, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		id, err := h.Backend.GetIdentity(ctx, name)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(id).Pack())
	})

	getToken := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		id, err := restable.Get[Identity](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		scopesBuf, err := hostabi.ReadBuf(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var scopes []string
		if err := hostabi.DecodeGob(scopesBuf, &scopes); err != nil {
			return hostabi.Fail(store, err)
		}
		tok, err := id.GetToken(ctx, scopes)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(tok)))
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"get-identity": getIdentity,
		"get-token":    getToken,
		"drop":         drop,
	})
}
