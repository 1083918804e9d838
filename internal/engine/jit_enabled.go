//go:build jit

package engine

// jitEnabled is true only in binaries built with the jit build tag,
// matching spec.md §6's "gated by a build-time feature" requirement for
// the compile subcommand and precompiled-artifact loading.
const jitEnabled = true

// Compile pre-compiles a wasm source image into a precompiled artifact.
// Only available when this binary is built with -tags jit; see
// cmd/wasmgate for the subcommand wiring that is itself gated the same
// way.
func Compile(wasmSource []byte) ([]byte, error) {
	return encodeArtifact(wasmSource)
}
