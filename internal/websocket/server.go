package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gql-dashboard/internal/events"
	"gql-dashboard/internal/logging"
)

// ServerConfig represents WebSocket server configuration
type ServerConfig struct {
	MaxConnections   int           `json:"max_connections"`
	ReadBufferSize   int           `json:"read_buffer_size"`
	WriteBufferSize  int           `json:"write_buffer_size"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	PingInterval     time.Duration `json:"ping_interval"`
	PongTimeout      time.Duration `json:"pong_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	MaxMessageSize   int64         `json:"max_message_size"`
	AllowedOrigins   []string      `json:"allowed_origins"`
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxConnections:   1000,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     54 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   4096,
		AllowedOrigins:   []string{"*"},
	}
}

// Server upgrades dashboard connections and runs their pumps
type Server struct {
	config   *ServerConfig
	upgrader websocket.Upgrader
	hub      *Hub
	logger   logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	running  bool
}

// NewServer creates a WebSocket server around hub
func NewServer(config *ServerConfig, hub *Hub, logger logging.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if hub == nil {
		hub = NewHub(logger, nil)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:   config.ReadBufferSize,
		WriteBufferSize:  config.WriteBufferSize,
		HandshakeTimeout: config.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, config.AllowedOrigins)
		},
	}

	return &Server{
		config:   config,
		upgrader: upgrader,
		hub:      hub,
		logger:   logger.WithComponent("websocket_server"),
	}
}

// Start runs the hub loop until ctx is cancelled or Stop is called
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	go s.hub.Run(s.ctx)
	s.logger.Info("WebSocket server started")
}

// Stop closes every client and stops the hub
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	s.logger.Info("WebSocket server stopped")
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Hub returns the hub the server registers clients with
func (s *Server) Hub() *Hub {
	return s.hub
}

// HandleUpgrade upgrades a dashboard connection. Query parameters
// "endpoint" and "kinds" (comma separated) set the initial filter.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running, ctx := s.running, s.ctx
	s.mu.RUnlock()
	if !running {
		http.Error(w, "WebSocket server not running", http.StatusServiceUnavailable)
		return
	}

	if s.config.MaxConnections > 0 && s.hub.GetClientCount() >= s.config.MaxConnections {
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	filter := events.Filter{EndpointID: r.URL.Query().Get("endpoint")}
	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		filter.Kinds = events.ParseKinds(strings.Split(kinds, ","))
	}

	client := NewClient(conn, s.hub, filter)
	s.hub.RegisterClient(client)

	go client.WritePump(ctx, s.config)
	go client.ReadPump(ctx, s.config)

	s.logger.Debug("WebSocket client connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)
}

// WritePump sends queued messages and keepalive pings
func (c *Client) WritePump(ctx context.Context, cfg *ServerConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Connection.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// hub closed the channel
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Connection.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// ReadPump reads control messages until the connection fails
func (c *Client) ReadPump(ctx context.Context, cfg *ServerConfig) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-ctx.Done():
		}
	}()

	c.Connection.SetReadLimit(cfg.MaxMessageSize)
	_ = c.Connection.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.Connection.SetPongHandler(func(string) error {
		return c.Connection.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		var msg Message
		if err := c.Connection.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug("WebSocket read error", "client_id", c.ID, "error", err)
			}
			return
		}
		_ = c.Connection.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		c.handleClientMessage(msg)
	}
}

// handleClientMessage processes subscribe, unsubscribe and ping frames
func (c *Client) handleClientMessage(msg Message) {
	switch msg.Type {
	case "subscribe":
		f := c.Filter()
		if msg.EndpointID != "" {
			f.EndpointID = msg.EndpointID
		}
		if len(msg.Kinds) > 0 {
			f.Kinds = events.ParseKinds(msg.Kinds)
		}
		c.SetFilter(f)
		c.reply(Message{Type: "subscribed", Timestamp: time.Now(), Data: f})

	case "unsubscribe":
		c.SetFilter(events.Filter{})
		c.reply(Message{Type: "unsubscribed", Timestamp: time.Now()})

	case "ping":
		c.reply(Message{Type: "pong", Timestamp: time.Now()})
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// checkOrigin validates the request origin
func checkOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")

	// non-browser clients send no origin
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
