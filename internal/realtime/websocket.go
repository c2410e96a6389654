package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sentrygrid/twinctl/internal/logger"
)

// WebSocket is the production Fanout: every connected client receives
// every published message regardless of topic (clients filter client-side
// on the embedded "type" field). Uses a ping/pong keepalive and a
// per-client buffered send channel.
type WebSocket struct {
	upgrader websocket.Upgrader
	log      logger.ComponentLogger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewWebSocket builds a WebSocket fanout. CORS origin checking is left to
// the caller's own handler chain; this transport accepts all origins.
func NewWebSocket(log logger.ComponentLogger) *WebSocket {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.WithComponent("realtime.websocket"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish fans message out to every connected client; slow or dead clients
// are dropped rather than blocking the publisher.
func (w *WebSocket) Publish(_ context.Context, _ string, message []byte) error {
	var slow []*wsClient
	w.mu.RLock()
	for c := range w.clients {
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	w.mu.RUnlock()
	for _, c := range slow {
		w.log.Debug("dropping slow websocket client", map[string]interface{}{"client": c.id})
		w.drop(c)
	}
	return nil
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them as Fanout subscribers.
func (w *WebSocket) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			http.Error(rw, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		c := &wsClient{id: uuid.New().String(), conn: conn, send: make(chan []byte, 256)}

		w.mu.Lock()
		w.clients[c] = struct{}{}
		w.mu.Unlock()
		w.log.Debug("websocket client connected", map[string]interface{}{"client": c.id})

		go w.writePump(c)
		go w.readPump(c)
	})
}

func (w *WebSocket) writePump(c *wsClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		w.drop(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *WebSocket) readPump(c *wsClient) {
	defer w.drop(c)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		// The real-time channel is server-push only; inbound data frames
		// are read and discarded. Only pong frames refresh the read
		// deadline, via the pong handler above.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *WebSocket) drop(c *wsClient) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.clients[c]; !ok {
		return
	}
	delete(w.clients, c)
	w.log.Debug("websocket client disconnected", map[string]interface{}{"client": c.id})
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
		c.conn.Close()
	}
}
