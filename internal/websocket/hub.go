package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message is pushed to websocket clients
type Message struct {
	Type     string `json:"type"`
	OrderID  int64  `json:"orderId,omitempty"`
	OrderKey string `json:"-"`
	Data     any    `json:"data,omitempty"`
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	orderKey string // empty receives every message
}

// Hub tracks connected clients and fans messages out to them
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) deliver(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.orderKey != "" && c.orderKey != msg.OrderKey {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// slow consumer
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Broadcast queues msg for delivery. It never blocks: when the queue is full
// the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "type", msg.Type, "order_id", msg.OrderID)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OrderUpdate is the client-visible part of a payment event. The order key
// is a shopper credential and never leaves the server.
type OrderUpdate struct {
	Status     models.OrderStatus `json:"status"`
	Reference  string             `json:"reference,omitempty"`
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Publish forwards a payment event to subscribed clients.
func (h *Hub) Publish(_ context.Context, ev payment.Event) error {
	h.Broadcast(Message{
		Type:     string(ev.Type),
		OrderID:  ev.OrderID,
		OrderKey: ev.OrderKey,
		Data: OrderUpdate{
			Status:     ev.Status,
			Reference:  ev.Reference,
			Amount:     ev.Amount.StringFixed(2),
			Currency:   ev.Currency,
			OccurredAt: ev.OccurredAt,
		},
	})
	return nil
}

// HandleWebSocket upgrades the request and registers the client. A client with
// an orderKey receives only that order's events; an empty key subscribes to
// every order and must only be granted to admins. Callers authorize first.
func HandleWebSocket(h *Hub, w http.ResponseWriter, r *http.Request, orderKey string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		orderKey: orderKey,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains client frames so pongs and close messages are processed.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
