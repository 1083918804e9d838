package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucketSetGetDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	bucket, err := backend.Open(ctx, "test")
	require.NoError(t, err)

	require.NoError(t, bucket.Set(ctx, "k", []byte("v"), 0))

	v, found, err := bucket.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, bucket.Delete(ctx, "k"))
	_, found, err = bucket.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryBucketExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	bucket, err := backend.Open(ctx, "test")
	require.NoError(t, err)

	require.NoError(t, bucket.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, found, err := bucket.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryBucketKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	bucket, err := backend.Open(ctx, "test")
	require.NoError(t, err)

	require.NoError(t, bucket.Set(ctx, "a:1", []byte("1"), 0))
	require.NoError(t, bucket.Set(ctx, "a:2", []byte("2"), 0))
	require.NoError(t, bucket.Set(ctx, "b:1", []byte("3"), 0))

	keys, err := bucket.Keys(ctx, "a:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a:1", "a:2"}, keys)
}

func TestSeparateBucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	a, _ := backend.Open(ctx, "a")
	b, _ := backend.Open(ctx, "b")

	require.NoError(t, a.Set(ctx, "k", []byte("in-a"), 0))
	_, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
