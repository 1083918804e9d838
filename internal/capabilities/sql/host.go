package sql

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Backend opens the one shared Connection a process uses for its SQL
// capability. Unlike kv/blob, spec.md's Connection is process-wide (a
// pool), not per-namespace, so Backend itself satisfies Connection.
type Backend interface {
	Connection
}

// Host links the SQL capability into a component template.
//
// prepare is pure data (spec.md §4.6.3: "prepare(sql, params) returns a
// statement handle (pure data)") so it never touches the backend; query
// and exec resolve the statement handle and execute it against the
// process-wide connection. Every function is marshaled through
// internal/hostabi's numeric ABI, the same convention internal/capabilities/kv
// uses; params and Rows are gob-encoded buffers since neither fits a
// scalar i64 word.
type Host struct {
	Backend Backend
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:sql/connection" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	prepare := hostabi.Def(4, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		sqlText, err := hostabi.ReadString(mod, args, 0)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		paramBuf, err := hostabi.ReadBuf(mod, args, 2)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		var params []Value
		if err := hostabi.DecodeGob(paramBuf, &params); err != nil {
			return hostabi.Fail(store, err)
		}
		handle := store.Resources.Insert(&Statement{SQL: sqlText, Params: params})
		return hostabi.OK(handle.Pack())
	})

	query := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		stmt, err := restable.Get[*Statement](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		rows, err := h.Backend.Query(ctx, stmt.SQL, stmt.Params)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(hostabi.StoreBlob(store, hostabi.EncodeGob(rows)))
	})

	exec := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		stmt, err := restable.Get[*Statement](store.Resources, hostabi.Handle(args, 0))
		if err != nil {
			return hostabi.Fail(store, err)
		}
		affected, err := h.Backend.Exec(ctx, stmt.SQL, stmt.Params)
		if err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(uint64(affected))
	})

	drop := hostabi.Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if err := store.Resources.Drop(hostabi.Handle(args, 0)); err != nil {
			return hostabi.Fail(store, err)
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"prepare": prepare,
		"query":   query,
		"exec":    exec,
		"drop":    drop,
	})
}
