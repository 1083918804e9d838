package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// MemoryBackend is the in-memory reference blob backend.
type MemoryBackend struct {
	mu         sync.Mutex
	containers map[string]*memoryContainer
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{containers: make(map[string]*memoryContainer)}
}

// Open implements Backend.
func (b *MemoryBackend) Open(ctx context.Context, name string) (Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.containers[name]
	if !ok {
		c = &memoryContainer{objects: make(map[string][]byte)}
		b.containers[name] = c
	}
	return c, nil
}

type memoryContainer struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (c *memoryContainer) GetData(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %q", key)
	}
	return data, nil
}

func (c *memoryContainer) WriteData(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = data
	return nil
}

func (c *memoryContainer) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var infos []ObjectInfo
	for key, data := range c.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, objectInfo(key, data))
		}
	}
	return infos, nil
}

func (c *memoryContainer) DeleteObject(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *memoryContainer) HasObject(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[key]
	return ok, nil
}

func (c *memoryContainer) ObjectInfo(ctx context.Context, key string) (ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("no such object %q", key)
	}
	return objectInfo(key, data), nil
}

func objectInfo(key string, data []byte) ObjectInfo {
	sum := md5.Sum(data)
	return ObjectInfo{Key: key, Size: int64(len(data)), ETag: hex.EncodeToString(sum[:])}
}
