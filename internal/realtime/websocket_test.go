package realtime

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, ws *WebSocket) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(ws.Handler())
	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func TestWebSocketPublishDeliversToConnectedClient(t *testing.T) {
	ws := NewWebSocket(nil)
	conn, cleanup := dialTestServer(t, ws)
	defer cleanup()

	// Give the server goroutine a moment to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ws.mu.RLock()
		n := len(ws.clients)
		ws.mu.RUnlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, ws.Publish(context.Background(), "topic", []byte(`{"hello":"world"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg))
}

func TestWebSocketDropsClientOnDisconnect(t *testing.T) {
	ws := NewWebSocket(nil)
	conn, cleanup := dialTestServer(t, ws)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ws.mu.RLock()
		n := len(ws.clients)
		ws.mu.RUnlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()
	cleanup()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ws.mu.RLock()
		n := len(ws.clients)
		ws.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client was not dropped after disconnect")
}
