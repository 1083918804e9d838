package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPair(t *testing.T, registry *Registry) (*websocket.Conn, string) {
	t.Helper()
	var upgrader websocket.Upgrader
	addrCh := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		addr := conn.RemoteAddr().String()
		registry.Add(addr, conn)
		addrCh <- addr
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	addr := <-addrCh
	return client, addr
}

func TestGorillaClientSendBroadcastsToAllPeers(t *testing.T) {
	registry := NewRegistry()
	client, addr := dialPair(t, registry)

	backend := NewGorillaBackend(registry)
	c, err := backend.Connect(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), &Event{Data: []byte("hello")}, nil))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	registry.Remove(addr)
	assert.NotContains(t, registry.peers, addr)
}

func TestGorillaClientSendTargetsSubset(t *testing.T) {
	registry := NewRegistry()
	_, otherAddr := dialPair(t, registry)
	client, addr := dialPair(t, registry)

	backend := NewGorillaBackend(registry)
	c, err := backend.Connect(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), &Event{Data: []byte("targeted")}, []string{addr}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "targeted", string(data))
	assert.NotEqual(t, addr, otherAddr)
}
