package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactRoundTrip(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	encoded, err := encodeArtifact(wasm)
	require.NoError(t, err)

	decoded, ok := decodeArtifact(encoded)
	require.True(t, ok)
	assert.Equal(t, wasm, decoded)
}

func TestDecodeArtifactRejectsRawWasm(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_, ok := decodeArtifact(wasm)
	assert.False(t, ok)
}

func TestLoadErrorFormatting(t *testing.T) {
	err := &LoadError{Kind: NotFound, Err: assert.AnError}
	assert.Contains(t, err.Error(), "NotFound")
	assert.ErrorIs(t, err, assert.AnError)
}
