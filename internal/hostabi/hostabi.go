// Package hostabi is the numeric ABI every capability links its Go
// methods through. WebAssembly functions only ever carry i32/i64/f32/f64
// words — there is no wire format for a Go string, []byte, map, or
// restable.Handle crossing that boundary directly. The real field-level
// lifting/lowering for each capability's argument shapes is exactly what
// the `guest!`/`runtime!` code generators produce on the guest side
// (spec.md §1, out of scope); this package is the host-side half of a
// fixed, simple convention those generators would target:
//
//   - a restable.Handle is one i64 word (restable.Handle.Pack).
//   - a scalar (bool, int64, a byte count) is one i64 word.
//   - a string or []byte argument is a (ptr, len) pair of i64 words,
//     read out of the calling instance's linear memory.
//   - any larger structured value — a map, a slice of records, an error
//     message — crosses as a single gob-encoded byte buffer: guest to
//     host as a (ptr, len) pair read from memory, host to guest as a new
//     blob inserted into the same per-request resource table every
//     handle already lives in (Store), returned as a Handle the guest
//     reads back via the "bytes" accessors runServe always links.
//
// Every linked function returns exactly two i64 words: a status (OK, a
// well-formed negative result such as "not found", or one of apperr's
// Kinds) and a value whose meaning depends on the function and status.
package hostabi

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmgate/wasmgate/internal/apperr"
	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Status codes returned in the first result word of every linked
// function.
const (
	StatusOK         = 0
	StatusNotFound   = 1 // a well-formed "absent", not an error (e.g. kv get miss)
	StatusBadRequest = 2
	StatusNoSuch     = 3 // apperr.KindNotFound, and restable.ErrNoSuchResource
	StatusBadGateway = 4
	StatusServer     = 5
)

// Func is the shape every capability host function reduces to once its
// rich Go parameters/results are marshaled across the wasm boundary. ctx
// carries the originating guest call's Store (see reqstore.FromContext);
// mod is the calling instance, for linear memory access; args holds
// exactly the function's declared parameter words.
type Func func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (status uint64, value uint64)

// Def builds a capability.HostFunc of argc i64 parameters and the
// uniform (status, value) i64 result pair over fn. argc is a word count:
// a Handle or scalar parameter is 1, a string/[]byte/gob-buffer
// parameter is 2 (ptr, len).
func Def(argc int, fn Func) capability.HostFunc {
	params := make([]api.ValueType, argc)
	for i := range params {
		params[i] = api.ValueTypeI64
	}
	return capability.HostFunc{
		Params:  params,
		Results: []api.ValueType{api.ValueTypeI64, api.ValueTypeI64},
		Func: func(ctx context.Context, mod api.Module, stack []uint64) {
			store, ok := reqstore.FromContext(ctx)
			if !ok {
				panic("hostabi: capability function invoked outside a guest call (no Store in context)")
			}
			// Copy params before the result write below reuses the same
			// backing array, per wazero's GoModuleFunc contract.
			args := append([]uint64(nil), stack[:argc]...)
			status, value := fn(ctx, store, mod, args)
			stack[0] = status
			stack[1] = value
		},
	}
}

// ReadBuf decodes a (ptr, len) argument pair starting at args[i] into a
// copy of the referenced guest memory.
func ReadBuf(mod api.Module, args []uint64, i int) ([]byte, error) {
	ptr, ln := uint32(args[i]), uint32(args[i+1])
	data, ok := mod.Memory().Read(ptr, ln)
	if !ok {
		return nil, fmt.Errorf("hostabi: reading %d bytes at guest address %d: out of bounds", ln, ptr)
	}
	return append([]byte(nil), data...), nil
}

// ReadString is ReadBuf with a string result, for the common case.
func ReadString(mod api.Module, args []uint64, i int) (string, error) {
	b, err := ReadBuf(mod, args, i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Handle decodes the Handle argument at args[i].
func Handle(args []uint64, i int) restable.Handle {
	return restable.UnpackHandle(args[i])
}

// StoreBlob inserts data as a new resource in store's table and returns
// its packed Handle, for a result value too large to fit in one word.
func StoreBlob(store *reqstore.Store, data []byte) uint64 {
	return store.Resources.Insert(append([]byte(nil), data...)).Pack()
}

// LoadBlob resolves a packed blob Handle back into bytes. Used by
// ResourceAccessors and by tests.
func LoadBlob(store *reqstore.Store, handle uint64) ([]byte, error) {
	return restable.Get[[]byte](store.Resources, restable.UnpackHandle(handle))
}

// ResourceModuleName is the always-linked module every Finalize'd
// template carries regardless of which capabilities are enabled: the
// guest-side half of the blob convention docs above, plus the one drop
// entry point every handle (capability-owned or a blob) shares.
const ResourceModuleName = "wasmgate:resources"

// ResourceAccessors returns the module runServe links once, unconditional
// of which capabilities are configured — the plain "capability" functions
// above only ever produce blob handles; these three are how the guest
// side reads and releases them.
func ResourceAccessors() map[string]capability.HostFunc {
	return map[string]capability.HostFunc{
		"bytes-len": Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
			data, err := LoadBlob(store, args[0])
			if err != nil {
				return Fail(store, err)
			}
			return OK(uint64(len(data)))
		}),
		"bytes-read": Def(3, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
			data, err := LoadBlob(store, args[0])
			if err != nil {
				return Fail(store, err)
			}
			ptr, capacity := uint32(args[1]), uint32(args[2])
			if uint64(capacity) < uint64(len(data)) {
				return Fail(store, fmt.Errorf("hostabi: destination buffer (%d bytes) too small for blob (%d bytes)", capacity, len(data)))
			}
			if !mod.Memory().Write(ptr, data) {
				return Fail(store, fmt.Errorf("hostabi: writing %d bytes at guest address %d: out of bounds", len(data), ptr))
			}
			return OK(uint64(len(data)))
		}),
		"drop": Def(1, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
			if err := store.Resources.Drop(restable.UnpackHandle(args[0])); err != nil {
				return Fail(store, err)
			}
			return OK(0)
		}),
	}
}

// EncodeGob serializes v for a cross-boundary buffer. Panics on a type
// gob cannot encode, which every capability's structured values (plain
// fields, no channels/funcs) support.
func EncodeGob(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("hostabi: encoding %T: %v", v, err))
	}
	return buf.Bytes()
}

// DecodeGob is EncodeGob's inverse.
func DecodeGob(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

// OK packs a successful result.
func OK(value uint64) (uint64, uint64) { return StatusOK, value }

// NotFound packs a well-formed "absent" result carrying no value, e.g. a
// kv Get miss.
func NotFound() (uint64, uint64) { return StatusNotFound, 0 }

// Bool encodes a bool as an OK result's value word.
func Bool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Fail classifies err by apperr.Kind (defaulting to a server error for a
// plain error) and stores its message as a blob, so the guest can still
// read the failure text back through the bytes accessors.
func Fail(store *reqstore.Store, err error) (uint64, uint64) {
	if errors.Is(err, restable.ErrNoSuchResource) {
		return StatusNoSuch, StoreBlob(store, []byte(err.Error()))
	}
	kind := apperr.KindServerError
	var ae *apperr.Error
	if errors.As(err, &ae) {
		kind = ae.Kind
	}
	var code uint64
	switch kind {
	case apperr.KindBadRequest:
		code = StatusBadRequest
	case apperr.KindNotFound:
		code = StatusNoSuch
	case apperr.KindBadGateway:
		code = StatusBadGateway
	default:
		code = StatusServer
	}
	return code, StoreBlob(store, []byte(err.Error()))
}
