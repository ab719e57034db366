// Package websocket pushes dashboard events to browser clients and reads the
// upstream metric stream.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gql-dashboard/internal/events"
	"gql-dashboard/internal/logging"
)

// Recorder receives hub activity counters. metrics.Metrics satisfies it.
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	MessageSent()
}

type nopRecorder struct{}

func (nopRecorder) ClientConnected()    {}
func (nopRecorder) ClientDisconnected() {}
func (nopRecorder) MessageSent()        {}

// Message is a control frame exchanged with dashboard clients. Events are
// sent as events.Envelope values instead.
type Message struct {
	Type       string      `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	EndpointID string      `json:"endpointId,omitempty"`
	Kinds      []string    `json:"kinds,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Client is one connected dashboard
type Client struct {
	ID          string
	Connection  *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	ConnectedAt time.Time

	mu     sync.Mutex
	filter events.Filter
	closed bool
}

// NewClient creates a client bound to hub
func NewClient(conn *websocket.Conn, hub *Hub, filter events.Filter) *Client {
	return &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, hub.sendBuffer),
		Hub:         hub,
		ConnectedAt: time.Now(),
		filter:      filter,
	}
}

// Filter returns the client's current subscription
func (c *Client) Filter() events.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter replaces the client's subscription
func (c *Client) SetFilter(f events.Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// SafeClose closes the send channel once
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed && c.Send != nil {
		close(c.Send)
		c.closed = true
	}
}

// trySend queues data without blocking; false means the buffer is full or
// the client is closed
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

type broadcast struct {
	event events.Event
	data  []byte
}

// Hub fans events out to connected dashboard clients. It implements
// events.Listener so it can subscribe to the dispatcher directly.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	mutex      sync.RWMutex
	sendBuffer int
	logger     logging.Logger
	recorder   Recorder
	dropped    uint64
}

// NewHub creates a hub. recorder may be nil.
func NewHub(logger logging.Logger, recorder Recorder) *Hub {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		sendBuffer: 256,
		logger:     logger.WithComponent("websocket_hub"),
		recorder:   recorder,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			h.removeClientLocked(client)
		}
		h.mutex.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.recorder.ClientConnected()

			h.logger.Info("Dashboard client registered", "client_id", client.ID, "total", total)

			welcome, _ := json.Marshal(Message{
				Type:      "connected",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"client_id": client.ID},
			})
			if !client.trySend(welcome) {
				h.removeClient(client)
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) deliver(msg broadcast) {
	var slow []*Client
	h.mutex.RLock()
	for client := range h.clients {
		if !client.Filter().Matches(msg.event) {
			continue
		}
		if client.trySend(msg.data) {
			h.recorder.MessageSent()
		} else {
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	// clients that cannot keep up are dropped
	for _, client := range slow {
		h.logger.Warn("Dropping slow dashboard client", "client_id", client.ID)
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClientLocked(client)
}

func (h *Hub) removeClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.SafeClose()
	if err := client.Connection.Close(); err != nil {
		h.logger.Debug("Error closing client connection", "client_id", client.ID, "error", err)
	}
	h.recorder.ClientDisconnected()
	h.logger.Info("Dashboard client disconnected", "client_id", client.ID, "total", len(h.clients))
}

// RegisterClient registers a new client with the hub
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Handle implements events.Listener. Events are serialized once and queued
// for the hub loop; when the queue is full the event is dropped.
func (h *Hub) Handle(e events.Event) {
	data, err := json.Marshal(events.NewEnvelope(e))
	if err != nil {
		h.logger.Error("Failed to encode event", "kind", string(e.Kind()), "error", err)
		return
	}
	select {
	case h.broadcast <- broadcast{event: e, data: data}:
	default:
		h.mutex.Lock()
		h.dropped++
		h.mutex.Unlock()
		h.logger.Warn("Broadcast channel full, dropping event", "kind", string(e.Kind()))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because the queue was full
func (h *Hub) Dropped() uint64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.dropped
}
