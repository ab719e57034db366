package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/internal/events"
	"gql-dashboard/pkg/types"
)

type countingRecorder struct {
	connected, disconnected, sent atomic.Int64
}

func (r *countingRecorder) ClientConnected()    { r.connected.Add(1) }
func (r *countingRecorder) ClientDisconnected() { r.disconnected.Add(1) }
func (r *countingRecorder) MessageSent()        { r.sent.Add(1) }

type envelope struct {
	Type    events.Kind `json:"type"`
	Payload struct {
		Alert types.Alert `json:"alert"`
	} `json:"payload"`
}

func startServer(t *testing.T, cfg *ServerConfig, rec Recorder) (*Server, string) {
	t.Helper()
	server := NewServer(cfg, NewHub(nil, rec), nil)
	ctx, cancel := context.WithCancel(context.Background())
	server.Start(ctx)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleUpgrade))
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
		cancel()
	})
	return server, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var welcome Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome.Type)
	return conn
}

func alertEvent(id, endpoint string) events.AlertTriggered {
	return events.AlertTriggered{
		Alert: types.Alert{ID: id, EndpointID: endpoint, Status: types.AlertStatusActive},
		At:    time.Now(),
	}
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(nil, nil, nil)
	assert.False(t, server.IsRunning())

	server.Start(context.Background())
	server.Start(context.Background())
	assert.True(t, server.IsRunning())

	server.Stop()
	server.Stop()
	assert.False(t, server.IsRunning())
}

func TestServer_RejectsWhenNotRunning(t *testing.T) {
	server := NewServer(nil, nil, nil)
	w := httptest.NewRecorder()
	server.HandleUpgrade(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_BroadcastHonoursEndpointFilter(t *testing.T) {
	rec := &countingRecorder{}
	server, url := startServer(t, nil, rec)
	conn := dial(t, url+"?endpoint=users")

	server.Hub().Handle(alertEvent("a-orders", "orders"))
	server.Hub().Handle(alertEvent("a-users", "users"))

	var env envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, events.KindAlertTriggered, env.Type)
	assert.Equal(t, "a-users", env.Payload.Alert.ID)

	assert.Equal(t, int64(1), rec.connected.Load())
	assert.Equal(t, 1, server.Hub().GetClientCount())
}

func TestServer_DispatcherFeedsHub(t *testing.T) {
	server, url := startServer(t, nil, nil)
	conn := dial(t, url)

	d := events.NewDispatcher(nil)
	d.Subscribe(server.Hub())
	d.Publish(alertEvent("a-1", "users"))

	var env envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "a-1", env.Payload.Alert.ID)
}

func TestServer_ClientMessages(t *testing.T) {
	server, url := startServer(t, nil, nil)
	conn := dial(t, url)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe", EndpointID: "orders"}))
	var ack Message
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	server.Hub().Handle(alertEvent("a-users", "users"))
	server.Hub().Handle(alertEvent("a-orders", "orders"))

	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "a-orders", env.Payload.Alert.ID)
}

func TestServer_KindsQueryFilter(t *testing.T) {
	server, url := startServer(t, nil, nil)
	conn := dial(t, url+"?kinds=alert-resolved,bogus")

	server.Hub().Handle(alertEvent("a-1", "users"))
	server.Hub().Handle(events.AlertResolved{Alert: types.Alert{ID: "a-2", EndpointID: "users"}, At: time.Now()})

	var env envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, events.KindAlertResolved, env.Type)
	assert.Equal(t, "a-2", env.Payload.Alert.ID)
}

func TestServer_ConnectionLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxConnections = 1
	_, url := startServer(t, cfg, nil)
	dial(t, url)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_SendsKeepalivePings(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.PingInterval = 20 * time.Millisecond
	_, url := startServer(t, cfg, nil)
	conn := dial(t, url)

	var pings atomic.Int64
	conn.SetPingHandler(func(string) error {
		pings.Add(1)
		return nil
	})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	assert.Positive(t, pings.Load())
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, checkOrigin(req, nil))

	req.Header.Set("Origin", "http://dash.local")
	assert.True(t, checkOrigin(req, []string{"http://dash.local"}))
	assert.False(t, checkOrigin(req, []string{"http://other"}))
	assert.True(t, checkOrigin(req, []string{"*"}))
}

func TestStreamClient_ReadsMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"metric"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	client := NewStreamClient(ts.URL, nil)
	assert.True(t, strings.HasPrefix(client.URL(), "ws://"))

	conn, err := client.Connect(context.Background())
	require.NoError(t, err)

	data, err := conn.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"metric"}`, string(data))

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestStreamClient_DialFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewStreamClient(ts.URL, nil).Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	var hs *HandshakeError
	require.ErrorAs(t, err, &hs)
	assert.Equal(t, http.StatusNotFound, hs.StatusCode)
	assert.True(t, hs.Rejected())
}

func TestHandshakeError_Rejected(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&HandshakeError{StatusCode: tt.status}).Rejected(), tt.status)
	}
}
