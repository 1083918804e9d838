package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

// MemoryBackend is the in-memory reference messaging broker: topics are
// fan-out channels shared by every Client connected through it.
type MemoryBackend struct {
	mu    sync.Mutex
	subs  map[string][]chan *Message
}

// NewMemoryBackend returns an empty in-memory broker.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{subs: make(map[string][]chan *Message)}
}

// Connect implements Backend; name is ignored, every connection shares
// the one broker.
func (b *MemoryBackend) Connect(ctx context.Context, name string) (Client, error) {
	return &memoryClient{backend: b}, nil
}

func (b *MemoryBackend) publish(topic string, msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *MemoryBackend) subscribe(topics []string) chan *Message {
	ch := make(chan *Message, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	return ch
}

type memoryClient struct {
	backend *MemoryBackend
}

func (c *memoryClient) Subscribe(ctx context.Context, topics []string) (<-chan *Message, error) {
	return c.backend.subscribe(topics), nil
}

func (c *memoryClient) Send(ctx context.Context, topic string, msg *Message) error {
	m := msg.clone()
	m.TopicName = topic
	c.backend.publish(topic, m)
	return nil
}

// Request has no real reply path in the in-memory backend (there is no
// broker-side request/reply support to fall back on); it always reports
// a BadGateway, matching spec.md §7's classification for "a host
// capability returned an error that originated in a backend the runtime
// cannot control".
func (c *memoryClient) Request(ctx context.Context, topic string, msg *Message, opts RequestOptions) (*Message, error) {
	return nil, apperr.BadGateway("request_reply_unsupported", fmt.Sprintf("memory backend does not support request-reply on topic %q", topic))
}

func (c *memoryClient) Close() error { return nil }
