package httpout

import (
	"context"
	"net/http"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Host links the outbound HTTP capability into a component template. The
// exact wasm ABI is produced by the guest!/runtime! code generators
// (spec.md §1, out of scope); Host exposes the handle-lifecycle entry
// point the generated glue calls through.
type Host struct {
	Sender *Sender
	Cache  *Cache
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:http/outgoing-handler" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	send := hostabi.Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		req, err := restable.Get[*http.Request](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		optsBuf, err := hostabi.ReadBuf(mod, args, 1)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var opts RequestOptions
		if err := hostabi.DecodeGob(optsBuf, &opts); err != nil {
			return hostabi.Fail(store, err)
		}
		resp, err := h.Sender.Send(ctx, req, opts, h.Cache)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(store.Resources.Insert(resp).Pack())
	})
	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{"send": send})
}
