package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientSendSubscribe(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	client, err := backend.Connect(ctx, "")
	require.NoError(t, err)

	msgs, err := client.Subscribe(ctx, []string{"orders.created"})
	require.NoError(t, err)

	require.NoError(t, client.Send(ctx, "orders.created", &Message{Payload: []byte("hi"), Metadata: map[string]string{}}))

	select {
	case msg := <-msgs:
		assert.Equal(t, "orders.created", msg.Topic())
		assert.Equal(t, []byte("hi"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMessageMutationReplacesValueImmutably(t *testing.T) {
	original := &Message{Payload: []byte("a"), Metadata: map[string]string{}}
	withCT := original.WithContentType("application/json")

	assert.Equal(t, "", original.ContentType)
	assert.Equal(t, "application/json", withCT.ContentType)
	assert.NotSame(t, original, withCT)
}

func TestMessageMetadataAddAndRemove(t *testing.T) {
	original := &Message{Metadata: map[string]string{}}
	withMeta := original.WithAddedMetadata("trace-id", "abc")
	assert.Equal(t, "abc", withMeta.Metadata["trace-id"])
	assert.Empty(t, original.Metadata)

	without := withMeta.WithoutMetadata("trace-id")
	assert.NotContains(t, without.Metadata, "trace-id")
	assert.Contains(t, withMeta.Metadata, "trace-id")
}
