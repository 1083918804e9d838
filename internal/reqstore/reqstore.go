// Package reqstore builds a fresh per-request store for every guest
// invocation: a new resource table, a new instance, and cloned references
// to the process's shared backend connections.
//
// Grounded on spec.md §4.3 and on the teacher's internal/process.Manager
// concurrency-tracking pattern (mutex-guarded map of live entries),
// repurposed here to track in-flight stores for graceful shutdown instead
// of spawned subprocesses.
package reqstore

import (
	"context"
	"io"
	"sync"

	"github.com/wasmgate/wasmgate/internal/engine"
	"github.com/wasmgate/wasmgate/internal/restable"
)

// Store is owned by exactly one in-flight guest call. It is destroyed when
// the call completes, which transitively releases every handle it
// created (spec.md §3's per-request store lifecycle).
type Store struct {
	ID        string
	Component string
	Resources *restable.Table
	Backends  map[string]any
	Instance  engine.Instance
}

type storeCtxKey struct{}

// Context returns a context carrying s, for use as the ctx argument to a
// guest export call. A capability host function invoked by the guest
// during that call recovers s with FromContext — the only way to reach
// the per-request store, since a *Store itself can never be a real wasm
// argument (spec.md §4.2's capability functions are linked once per
// template, long before any per-request Store exists).
func (s *Store) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, storeCtxKey{}, s)
}

// FromContext recovers the Store embedded by Context. ok is false when
// called outside a guest invocation driven through Context, e.g. a stray
// host function call during tests.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeCtxKey{}).(*Store)
	return s, ok
}

// Close destroys the store: every remaining handle is dropped exactly
// once (spec.md §8 testable property 2), then the instance is torn down.
func (s *Store) Close(ctx context.Context) error {
	s.Resources.DropAll(nil)
	return s.Instance.Close(ctx)
}

// Factory builds fresh stores from one pre-instantiation template, per
// spec.md §4.3's per-request store factory contract.
type Factory struct {
	template  *engine.Template
	component string
	backends  map[string]any
}

// NewFactory returns a Factory over tpl. backends holds the process's
// shared backend connections (one entry per linked capability); Factory
// clones the map reference into every store it creates, never the
// connections themselves.
func NewFactory(tpl *engine.Template, component string, backends map[string]any) *Factory {
	return &Factory{template: tpl, component: component, backends: backends}
}

// InstancePre returns the pre-instantiation template, per spec.md §4.3.
func (f *Factory) InstancePre() *engine.Template {
	return f.template
}

// NewStore builds a fresh store for one inbound unit of work (an HTTP
// request or a broker message). id should be unique per call, e.g. a
// generated request id.
func (f *Factory) NewStore(ctx context.Context, id string, stdout io.Writer) (*Store, error) {
	inst, err := f.template.Instantiate(ctx, engine.InstanceConfig{
		Name:   id,
		Stdout: stdout,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		ID:        id,
		Component: f.component,
		Resources: restable.New(),
		Backends:  f.backends,
		Instance:  inst,
	}, nil
}

// Tracker tracks in-flight stores so a graceful shutdown, once the
// listener has stopped accepting, can wait for guest calls to finish
// writing their response. Adapted from the teacher's internal/process.Manager's
// mutex-guarded map of live entries.
type Tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	stores map[string]*Store
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{stores: make(map[string]*Store)}
}

// Add registers s as in-flight.
func (t *Tracker) Add(s *Store) {
	t.mu.Lock()
	t.stores[s.ID] = s
	t.mu.Unlock()
	t.wg.Add(1)
}

// Remove marks s as complete.
func (t *Tracker) Remove(s *Store) {
	t.mu.Lock()
	delete(t.stores, s.ID)
	t.mu.Unlock()
	t.wg.Done()
}

// Wait blocks until every tracked store has been Removed.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// InFlight reports the number of stores currently tracked.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stores)
}
