// Package engine turns a component image file into a reusable
// pre-instantiation template and produces fresh instances from it.
//
// Grounded on original_source/crates/warp/src/create.rs (load/compile/link
// shape) and the wazero engine wiring in
// _examples/other_examples/.../engines-wazero-wazero.go.go (wasi_snapshot_preview1
// instantiation, HostModuleBuilder, CompiledModule, ModuleConfig).
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wasmgate/wasmgate/internal/capability"
)

// Template is an immutable pre-instantiation template: a compiled module
// plus every host capability linked into it. Once Finalize is called it
// must not be mutated further (spec.md §4.1).
type Template struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule

	mu        sync.Mutex
	linked    map[string]bool
	finalized bool
}

// Load reads a component image from path and builds a Template from it.
func Load(ctx context.Context, path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Kind: NotFound, Err: err}
		}
		return nil, &LoadError{Kind: Unreadable, Err: err}
	}
	return FromBytes(ctx, data)
}

// FromBytes builds a Template directly from an in-memory image, auto
// detecting whether it is a precompiled artifact or raw wasm source.
func FromBytes(ctx context.Context, image []byte) (*Template, error) {
	rt := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, &LoadError{Kind: InvalidImage, Err: fmt.Errorf("installing base WASI interfaces: %w", err)}
	}

	wasm := image
	if decoded, ok := decodeArtifact(image); ok {
		if !jitEnabled {
			_ = rt.Close(ctx)
			return nil, &LoadError{Kind: IncompatibleAbi, Err: fmt.Errorf("precompiled artifact requires jit support")}
		}
		wasm = decoded
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, &LoadError{Kind: InvalidImage, Err: err}
	}

	return &Template{
		runtime:  rt,
		compiled: compiled,
		linked:   make(map[string]bool),
	}, nil
}

// LinkFunctions implements capability.Linker. It instantiates a host
// module named moduleName exporting funcs, rejecting a second call for the
// same moduleName as a configuration error (spec.md §4.2: "a capability
// must appear at most once per template").
//
// Each capability.HostFunc is registered with WithGoModuleFunction rather
// than the reflection-based WithFunc: wazero's reflection only accepts
// Go functions whose parameters/results are themselves
// uint32/uint64/float32/float64 (plus a leading context.Context/
// api.Module), and panics on anything else — which every capability's
// rich Go signatures (strings, byte slices, restable.Handle, structs)
// violate. WithGoModuleFunction instead takes the wasm-level
// []api.ValueType signature explicitly and hands the implementation a
// raw stack of i64 words, so registration can never panic regardless of
// what a capability wants to pass; internal/hostabi does the marshaling
// between that raw stack and a capability's Go-shaped methods.
func (t *Template) LinkFunctions(ctx context.Context, moduleName string, funcs map[string]capability.HostFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized {
		return fmt.Errorf("engine: template already finalized, cannot link %q", moduleName)
	}
	if t.linked[moduleName] {
		return fmt.Errorf("engine: capability %q already linked into this template", moduleName)
	}

	b := t.runtime.NewHostModuleBuilder(moduleName)
	for name, fn := range funcs {
		b.NewFunctionBuilder().
			WithGoModuleFunction(fn.Func, fn.Params, fn.Results).
			Export(name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("engine: linking %q: %w", moduleName, err)
	}
	t.linked[moduleName] = true
	return nil
}

// Finalize marks the template immutable. Called once every capability the
// runtime declaration requires has been linked.
func (t *Template) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalized = true
}

// InstanceConfig customizes a single instantiation's stdio. Every instance
// gets a new WASI context inheriting the process's environment variables
// and stdio (spec.md §4.3); a non-nil stream here replaces the inherited one.
type InstanceConfig struct {
	Name   string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Instantiate produces a fresh, independent instance from the template.
// The returned module and its backing wazero.Module must be closed by the
// caller when the per-request store is torn down.
func (t *Template) Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	mc := wazero.NewModuleConfig().WithName(cfg.Name).
		WithStdin(os.Stdin).WithStdout(os.Stdout).WithStderr(os.Stderr)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			mc = mc.WithEnv(k, v)
		}
	}
	if cfg.Stdin != nil {
		mc = mc.WithStdin(cfg.Stdin)
	}
	if cfg.Stdout != nil {
		mc = mc.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mc = mc.WithStderr(cfg.Stderr)
	}
	mod, err := t.runtime.InstantiateModule(ctx, t.compiled, mc)
	if err != nil {
		return Instance{}, fmt.Errorf("engine: instantiating: %w", err)
	}
	return Instance{module: mod}, nil
}

// Close releases the runtime and everything compiled into it. Called once
// at process exit.
func (t *Template) Close(ctx context.Context) error {
	return t.runtime.Close(ctx)
}

// Instance is one short-lived guest instance produced from a Template.
type Instance struct {
	module api.Module
}

// Close tears the instance down, releasing its resources back to the
// runtime. Per spec.md §4.3, stores (and the instances they own) must not
// outlive the guest call.
func (i Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	return i.module.Close(ctx)
}

// ExportedFunction resolves one of the guest's exported functions by
// name, or nil if it exports none by that name. The exact shape of a
// guest's HTTP/messaging/websocket entry points is produced by the
// `guest!`/`runtime!` code generators (spec.md §1, out of scope); this
// only resolves the callable itself, leaving request/response marshaling
// to the caller.
func (i Instance) ExportedFunction(name string) api.Function {
	return i.module.ExportedFunction(name)
}

// JITEnabled reports whether this binary was built with the jit build
// tag, i.e. whether the `compile` CLI subcommand and precompiled-artifact
// loading are available (spec.md §6: "gated by a build-time feature; when
// absent, the subcommand is not offered").
func JITEnabled() bool {
	return jitEnabled
}
