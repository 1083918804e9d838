// Package config implements the guest configuration capability: a
// read-only key/value view the guest queries for configuration values,
// per spec.md §1's "configuration" capability.
//
// Grounded on original_source/crates/wasi-config/src/host/default_impl.rs,
// which snapshots os.Environ() once at connect time into an immutable map
// — non-server, no backend variation needed, so this capability has a
// single default backend rather than a driver registry like kv/blob/sql.
package config

import (
	"context"
	"os"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
)

// Host links the configuration capability into a component template.
// There is no handle protocol here — get(key) is a pure lookup against
// an immutable snapshot taken once at process startup, per spec.md §9's
// "global process state ... set during single-threaded startup ...
// then read-only."
type Host struct {
	vars map[string]string
}

// NewHost snapshots the process environment once, at construction time,
// before any server task exists.
func NewHost() *Host {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return &Host{vars: vars}
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:config/store" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	get := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		key, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		v, ok := h.vars[key]
		if !ok {
			return hostabi.NotFound()
		}
		return hostabi.OK(hostabi.StoreBlob(store, []byte(v)))
	})

	getAll := hostabi.Def(0, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(h.vars)))
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"get":     get,
		"get-all": getAll,
	})
}
