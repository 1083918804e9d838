package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSetGetDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	locker, err := backend.Open(ctx, "secrets")
	require.NoError(t, err)

	require.NoError(t, locker.Set(ctx, "api-key", []byte("shh")))

	v, found, err := locker.Get(ctx, "api-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("shh"), v)

	exists, err := locker.Exists(ctx, "api-key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, locker.Delete(ctx, "api-key"))
	_, found, err = locker.Get(ctx, "api-key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryLockerListIDs(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	locker, err := backend.Open(ctx, "secrets")
	require.NoError(t, err)

	require.NoError(t, locker.Set(ctx, "a", []byte("1")))
	require.NoError(t, locker.Set(ctx, "b", []byte("2")))

	ids, err := locker.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestSeparateLockersAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	a, _ := backend.Open(ctx, "a")
	b, _ := backend.Open(ctx, "b")

	require.NoError(t, a.Set(ctx, "k", []byte("in-a")))
	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
