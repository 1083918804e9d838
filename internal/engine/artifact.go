package engine

import (
	"bytes"
	"encoding/gob"
)

// artifactMagic prefixes a precompiled artifact produced by the `compile`
// CLI subcommand, distinguishing it from a raw wasm source image (which
// always begins with the "\0asm" magic instead). Load attempts to decode
// this form first and falls back to treating the bytes as wasm source,
// matching spec.md §6's "auto-detected by attempting deserialization first
// and falling back" wording.
var artifactMagic = []byte("wasmgate.artifact.v1\n")

// artifact is the on-disk shape written by Compile.
type artifact struct {
	Wasm []byte
}

func encodeArtifact(wasm []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(artifactMagic)
	if err := gob.NewEncoder(&buf).Encode(artifact{Wasm: wasm}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeArtifact reports whether image is a precompiled artifact and, if
// so, its wrapped wasm bytes.
func decodeArtifact(image []byte) (wasm []byte, ok bool) {
	if !bytes.HasPrefix(image, artifactMagic) {
		return nil, false
	}
	var a artifact
	rest := image[len(artifactMagic):]
	if err := gob.NewDecoder(bytes.NewReader(rest)).Decode(&a); err != nil {
		return nil, false
	}
	return a.Wasm, true
}
