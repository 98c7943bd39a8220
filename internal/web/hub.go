package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write one message to a browser.
	writeWait = 5 * time.Second

	// Messages queued per client before it counts as stalled.
	sendBuffer = 16
)

var errClientStalled = errors.New("websocket client stalled")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// LAN-only status page
		return true
	},
}

// WSMessage is the envelope pushed to websocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSClient is a single websocket connection. Only its own writer goroutine
// touches the socket for writing; everyone else queues onto send.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *WSClient) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue never blocks. It returns false when the client is stopped or its
// queue is full.
func (c *WSClient) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Send queues msg for the client.
func (c *WSClient) Send(msg WSMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !c.enqueue(b) {
		return errClientStalled
	}
	return nil
}

func (c *WSClient) writePump() {
	defer c.stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// WSHub fans status updates out to connected browsers.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewWSHub creates an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*WSClient]struct{})}
}

// Add registers conn with the hub and starts its writer.
func (h *WSHub) Add(conn *websocket.Conn) *WSClient {
	c := &WSClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()
	return c
}

// Remove unregisters c and closes its connection.
func (h *WSHub) Remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Len returns the number of connected clients.
func (h *WSHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client without waiting on any socket.
// Clients that have fallen sendBuffer messages behind are dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	var stalled []*WSClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.enqueue(b) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		log.Printf("web: dropping websocket client %s: %v", c.conn.RemoteAddr(), errClientStalled)
		h.Remove(c)
	}
}

// CloseAll disconnects every client. Used on shutdown.
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.stop()
	}
}

func (h *WSHub) serve(w http.ResponseWriter, r *http.Request, hello WSMessage) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := h.Add(conn)
	if err := client.Send(hello); err != nil {
		h.Remove(client)
		return
	}

	// Keep reading until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Remove(client)
			return
		}
	}
}
