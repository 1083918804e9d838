package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is the in-memory reference KV backend.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]*memoryBucket)}
}

// Open implements Backend.
func (b *MemoryBackend) Open(ctx context.Context, name string) (Bucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, ok := b.buckets[name]
	if !ok {
		bucket = &memoryBucket{data: make(map[string]memoryEntry)}
		b.buckets[name] = bucket
	}
	return bucket, nil
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

type memoryBucket struct {
	mu   sync.Mutex
	data map[string]memoryEntry
}

func (b *memoryBucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(b.data, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (b *memoryBucket) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.data[key] = memoryEntry{value: value, expires: expires}
	return nil
}

func (b *memoryBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memoryBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := b.Get(ctx, key)
	return found, err
}

func (b *memoryBucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
