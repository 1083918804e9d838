// Package messaging implements the messaging capability: a pub/sub Client
// with subscribe/send/request, and an immutable Message capability object,
// backed by an in-memory broker or AMQP.
//
// Grounded on original_source/crates/wasi-messaging/src/host/types_impl.rs
// (Client connect/disconnect, Message's mutate-by-replacement discipline)
// and spec.md §4.6.4.
package messaging

import (
	"context"
	"time"
)

// Message is the messaging capability object. It is immutable from the
// guest's point of view: every mutating call in Host constructs a new
// Message value and inserts a new handle, per spec.md §4.6.4.
type Message struct {
	TopicName   string
	Payload     []byte
	ContentType string
	Metadata    map[string]string
	ReplyTo     string
}

// Topic implements messagingpump.Message.
func (m *Message) Topic() string { return m.TopicName }

// WithContentType returns a copy of m with ContentType replaced.
func (m *Message) WithContentType(contentType string) *Message {
	clone := m.clone()
	clone.ContentType = contentType
	return clone
}

// WithPayload returns a copy of m with Payload replaced.
func (m *Message) WithPayload(data []byte) *Message {
	clone := m.clone()
	clone.Payload = data
	return clone
}

// WithAddedMetadata returns a copy of m with one metadata key set.
func (m *Message) WithAddedMetadata(key, value string) *Message {
	clone := m.clone()
	clone.Metadata[key] = value
	return clone
}

// WithMetadata returns a copy of m with its metadata map replaced entirely.
func (m *Message) WithMetadata(meta map[string]string) *Message {
	clone := m.clone()
	clone.Metadata = make(map[string]string, len(meta))
	for k, v := range meta {
		clone.Metadata[k] = v
	}
	return clone
}

// WithoutMetadata returns a copy of m with one metadata key removed.
func (m *Message) WithoutMetadata(key string) *Message {
	clone := m.clone()
	delete(clone.Metadata, key)
	return clone
}

func (m *Message) clone() *Message {
	meta := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	return &Message{
		TopicName:   m.TopicName,
		Payload:     append([]byte(nil), m.Payload...),
		ContentType: m.ContentType,
		Metadata:    meta,
		ReplyTo:     m.ReplyTo,
	}
}

// RequestOptions carries the caller-supplied request-reply timeout. Per
// spec.md §5, absence means block until reply or broker cancellation; a
// non-zero Timeout is passed unchanged to context.WithTimeout, with no unit
// conversion or rounding performed by WasmGate.
type RequestOptions struct {
	Timeout time.Duration
}

// Client is the messaging capability object for one broker connection.
type Client interface {
	Subscribe(ctx context.Context, topics []string) (<-chan *Message, error)
	Send(ctx context.Context, topic string, msg *Message) error
	Request(ctx context.Context, topic string, msg *Message, opts RequestOptions) (*Message, error)
	Close() error
}

// Backend connects to the broker named "name" by the guest's connect call.
// Most backends ignore name and return the one shared process connection.
type Backend interface {
	Connect(ctx context.Context, name string) (Client, error)
}
