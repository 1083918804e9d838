//go:build !jit

package engine

import "fmt"

const jitEnabled = false

// Compile is unavailable in a binary built without the jit tag.
func Compile(wasmSource []byte) ([]byte, error) {
	return nil, fmt.Errorf("engine: compile unavailable: binary built without jit support")
}
