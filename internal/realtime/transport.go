package realtime

import (
	"context"
	"errors"

	"gql-dashboard/internal/retry"
	"gql-dashboard/internal/websocket"
)

// Stream is an open live connection delivering raw messages
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// Transport opens live streams
type Transport interface {
	Connect(ctx context.Context) (Stream, error)
}

// WebSocketTransport reads the live stream over a websocket
type WebSocketTransport struct {
	client *websocket.StreamClient
}

// NewWebSocketTransport creates a transport for the stream at url
func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{client: websocket.NewStreamClient(url, nil)}
}

// Connect implements Transport. A handshake the server rejects outright is
// marked permanent so reconnection stops.
func (t *WebSocketTransport) Connect(ctx context.Context) (Stream, error) {
	conn, err := t.client.Connect(ctx)
	if err != nil {
		var hs *websocket.HandshakeError
		if errors.As(err, &hs) && hs.Rejected() {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return conn, nil
}
