// Package capability defines the contract every host capability implements
// to be linked into a component template, plus a small named-backend
// registry reused by each capability package to pick its backend driver.
//
// Grounded on original_source/crates/warp/src/traits.rs's State/Host/
// Server/Backend/FromEnv traits, and on the teacher's internal/router's
// ProviderDriver/RegisterDriver registry pattern.
package capability

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// HostFunc is one function a capability exports into its module
// namespace, in the numeric shape wazero's host-function ABI actually
// accepts: every parameter and result is an i64 stack word (wasm itself
// has no string/struct/slice arguments). Func reads Params from the
// leading slots of stack and writes Results back into the same slots,
// per wazero's WithGoModuleFunction contract. internal/hostabi builds
// HostFunc values from a capability's ordinary typed Go methods, so this
// package stays the only place that speaks wazero's api types.
type HostFunc struct {
	Params  []api.ValueType
	Results []api.ValueType
	Func    api.GoModuleFunc
}

// Linker binds one capability's host functions into a component template
// under the capability's own module namespace. Implemented by
// internal/engine.Template. A capability must appear at most once per
// template; a Linker implementation rejects a second Link for the same
// name as a configuration error (spec.md §4.2), not a runtime error.
type Linker interface {
	LinkFunctions(ctx context.Context, moduleName string, funcs map[string]HostFunc) error
}

// Host is implemented by every capability the engine can link into a
// pre-instantiation template.
type Host interface {
	// Name is the capability's module namespace, e.g. "wasi:keyvalue".
	Name() string
	// Link binds this capability's host functions into l.
	Link(ctx context.Context, l Linker) error
}

// Server is implemented by capabilities that drive inbound traffic — HTTP
// in, messaging in, websocket in. Run blocks until ctx is cancelled or the
// server fails. Non-server capabilities do not implement Server.
type Server interface {
	Run(ctx context.Context) error
}

// LinkAll links every capability in caps into l, in order, returning the
// first error encountered. Per spec.md §4.2, linking errors are fatal at
// startup.
func LinkAll(ctx context.Context, l Linker, caps []Host) error {
	seen := make(map[string]bool, len(caps))
	for _, c := range caps {
		if seen[c.Name()] {
			return fmt.Errorf("capability: %q already linked into this template", c.Name())
		}
		if err := c.Link(ctx, l); err != nil {
			return fmt.Errorf("linking capability %q: %w", c.Name(), err)
		}
		seen[c.Name()] = true
	}
	return nil
}

// Registry is a named registry of backend constructors for one capability.
// Adapted from the teacher's internal/router ProviderDriver/RegisterDriver
// pattern, generalized from "model provider name" to "capability backend
// name" (e.g. kv: "memory" vs "redis", sql: "sqlite" vs "postgres").
type Registry[T any] struct {
	drivers map[string]func() (T, error)
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{drivers: make(map[string]func() (T, error))}
}

// Register adds a named backend constructor. A later call with the same
// name overwrites the earlier one.
func (r *Registry[T]) Register(name string, build func() (T, error)) {
	r.drivers[name] = build
}

// Build constructs the named backend, or an error if no driver is
// registered under that name.
func (r *Registry[T]) Build(name string) (T, error) {
	var zero T
	build, ok := r.drivers[name]
	if !ok {
		return zero, fmt.Errorf("capability: unknown backend %q", name)
	}
	return build()
}

// Names returns the registered backend names, for diagnostics.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}
