package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContainerWriteGetDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c, err := backend.Open(ctx, "assets")
	require.NoError(t, err)

	require.NoError(t, c.WriteData(ctx, "a.txt", []byte("hello")))

	data, err := c.GetData(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	has, err := c.HasObject(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, c.DeleteObject(ctx, "a.txt"))
	has, err = c.HasObject(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryContainerListObjectsByPrefix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c, err := backend.Open(ctx, "assets")
	require.NoError(t, err)

	require.NoError(t, c.WriteData(ctx, "img/a.png", []byte("a")))
	require.NoError(t, c.WriteData(ctx, "img/b.png", []byte("b")))
	require.NoError(t, c.WriteData(ctx, "doc/c.txt", []byte("c")))

	infos, err := c.ListObjects(ctx, "img/")
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestMemoryContainerObjectInfoNotFound(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c, err := backend.Open(ctx, "assets")
	require.NoError(t, err)

	_, err = c.ObjectInfo(ctx, "missing")
	assert.Error(t, err)
}
