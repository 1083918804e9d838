package vault

import (
	"context"
	"sync"
)

// MemoryBackend is the in-memory reference vault backend.
type MemoryBackend struct {
	mu      sync.Mutex
	lockers map[string]*memoryLocker
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{lockers: make(map[string]*memoryLocker)}
}

// Open implements Backend.
func (b *MemoryBackend) Open(ctx context.Context, lockerID string) (Locker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lockers[lockerID]
	if !ok {
		l = &memoryLocker{secrets: make(map[string][]byte)}
		b.lockers[lockerID] = l
	}
	return l, nil
}

type memoryLocker struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

func (l *memoryLocker) Get(ctx context.Context, secretID string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.secrets[secretID]
	return v, ok, nil
}

func (l *memoryLocker) Set(ctx context.Context, secretID string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.secrets[secretID] = value
	return nil
}

func (l *memoryLocker) Delete(ctx context.Context, secretID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.secrets, secretID)
	return nil
}

func (l *memoryLocker) Exists(ctx context.Context, secretID string) (bool, error) {
	_, ok, _ := l.Get(ctx, secretID)
	return ok, nil
}

func (l *memoryLocker) ListIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.secrets))
	for id := range l.secrets {
		ids = append(ids, id)
	}
	return ids, nil
}
