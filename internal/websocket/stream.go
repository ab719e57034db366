package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamWriteWait  = 10 * time.Second
	streamMaxMessage = 1 << 20
)

// HandshakeError is a dial the server answered with a non-upgrade response
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket dial failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the server refused the client itself, so that
// dialing again cannot succeed. Timeouts and rate limits are not rejections.
func (e *HandshakeError) Rejected() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// StreamClient dials the upstream metric stream
type StreamClient struct {
	url    string
	header http.Header
	dialer websocket.Dialer
}

// NewStreamClient creates a client for url; http(s) schemes are mapped to
// ws(s)
func NewStreamClient(url string, header http.Header) *StreamClient {
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	return &StreamClient{
		url:    url,
		header: header,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// URL returns the websocket URL the client dials
func (c *StreamClient) URL() string {
	return c.url
}

// Connect dials the stream. The returned connection answers pings and
// sends its own until closed.
func (c *StreamClient) Connect(ctx context.Context) (*StreamConn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadLimit(streamMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	sc := &StreamConn{conn: conn, done: make(chan struct{})}
	go sc.pingLoop()
	return sc, nil
}

// StreamConn is an open upstream connection
type StreamConn struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// Next blocks for the next text or binary message
func (s *StreamConn) Next() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close stops the ping loop and closes the connection
func (s *StreamConn) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
		err = s.conn.Close()
	})
	return err
}

func (s *StreamConn) pingLoop() {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
