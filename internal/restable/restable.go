// Package restable implements the per-store resource table: a generational
// arena mapping integer handles to host-owned capability objects.
//
// A handle is (slot, generation), per spec.md §9's design note. Stale or
// unknown handles are reported as "no such resource" — a recoverable
// guest-visible error — while a type mismatch on an otherwise-live handle
// is a host invariant violation and panics, so the HTTP server can trap the
// guest and turn it into the fixed 500 page.
package restable

import (
	"fmt"
	"sync"
)

// Handle identifies a value owned by a Table. It is opaque to guests.
type Handle struct {
	Slot       uint32
	Generation uint64
}

// Pack encodes h as the single i64 word the wazero host-function ABI
// actually carries across the guest boundary (wasm has no struct
// arguments): the slot in the high 32 bits, the low 32 bits of the
// generation in the low 32 bits. Host-internal generations never exceed
// 2^32 within a single request's resource table, so this is lossless in
// practice; see internal/hostabi.
func (h Handle) Pack() uint64 {
	return uint64(h.Slot)<<32 | (h.Generation & 0xffffffff)
}

// UnpackHandle reverses Pack.
func UnpackHandle(word uint64) Handle {
	return Handle{Slot: uint32(word >> 32), Generation: word & 0xffffffff}
}

// ErrNoSuchResource is returned whenever a handle does not resolve to a
// live value: unknown slot, stale generation, or an explicit double-drop.
var ErrNoSuchResource = fmt.Errorf("no such resource")

type entry struct {
	generation uint64
	occupied   bool
	value      any
}

// Table is one per-request store's resource table. It is never shared
// across stores.
type Table struct {
	mu      sync.Mutex
	entries []entry
	free    []uint32
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Insert adds value under a fresh handle.
func (t *Table) Insert(value any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.free); n > 0 {
		slot := t.free[n-1]
		t.free = t.free[:n-1]
		e := &t.entries[slot]
		e.occupied = true
		e.value = value
		return Handle{Slot: slot, Generation: e.generation}
	}

	slot := uint32(len(t.entries))
	t.entries = append(t.entries, entry{generation: 1, occupied: true, value: value})
	return Handle{Slot: slot, Generation: 1}
}

func (t *Table) lookupLocked(h Handle) (*entry, error) {
	if int(h.Slot) >= len(t.entries) {
		return nil, ErrNoSuchResource
	}
	e := &t.entries[h.Slot]
	if !e.occupied || e.generation != h.Generation {
		return nil, ErrNoSuchResource
	}
	return e, nil
}

// Get returns the untyped value behind h, or ErrNoSuchResource.
func (t *Table) Get(h Handle) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// Get resolves h to a value of type T. A live handle whose stored value is
// not a T is a host invariant violation (the handle's type is part of its
// interface contract) and panics rather than returning an error.
func Get[T any](t *Table, h Handle) (T, error) {
	var zero T
	v, err := t.Get(h)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("restable: handle %+v does not hold the expected type", h))
	}
	return tv, nil
}

// Drop releases h. A redundant drop (already released, or never valid)
// returns ErrNoSuchResource, which is recoverable, not a trap.
func (t *Table) Drop(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookupLocked(h)
	if err != nil {
		return err
	}
	e.occupied = false
	e.value = nil
	e.generation++
	t.free = append(t.free, h.Slot)
	return nil
}

// DropAll releases every live handle exactly once, invoking onDrop (when
// non-nil) for each value first. Called when a per-request store is
// destroyed, per spec.md §8 testable property 2.
func (t *Table) DropAll(onDrop func(value any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if !e.occupied {
			continue
		}
		if onDrop != nil {
			onDrop(e.value)
		}
		e.occupied = false
		e.value = nil
		e.generation++
		t.free = append(t.free, uint32(i))
	}
}

// Len reports the number of live handles, for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.occupied {
			n++
		}
	}
	return n
}
