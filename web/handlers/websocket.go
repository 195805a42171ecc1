package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const clientSendBuffer = 64

// EventHub fans extraction events out to connected dashboard clients over
// WebSocket. Slow clients are dropped rather than allowed to back up the
// broadcast loop.
type EventHub struct {
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ExtractionEvent is the wire format pushed to dashboard clients.
type ExtractionEvent struct {
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Time    int64  `json:"time"`
}

// NewEventHub creates a hub; call Run in a goroutine and Stop on shutdown.
func NewEventHub() *EventHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventHub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *EventHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// backed-up client, cut it loose
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts down the hub and disconnects every client.
func (h *EventHub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*wsClient]struct{})
}

// Publish queues an event for broadcast. The signature matches the
// notification watcher callback so the two wire together directly.
func (h *EventHub) Publish(eventType, subject string) {
	data, err := json.Marshal(ExtractionEvent{
		Type:    eventType,
		Subject: subject,
		Time:    time.Now().Unix(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Println("handlers: event broadcast channel full, dropping")
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		log.Printf("handlers: websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.writeLoop(h)
	c.readLoop(h)
}

func (c *wsClient) writeLoop(h *EventHub) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}

// readLoop drains incoming frames so pings are answered and disconnects are
// noticed. The dashboard never sends application messages.
func (c *wsClient) readLoop(h *EventHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
