package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/internal/events"
	"gql-dashboard/pkg/types"
)

func newTestMetrics() *Metrics {
	return NewMetricsWithRegistry("test", prometheus.NewRegistry())
}

func TestMetrics_HandleAlertEvents(t *testing.T) {
	m := newTestMetrics()
	alert := types.Alert{ID: "a1", Severity: types.SeverityHigh, EndpointID: "users"}

	m.Handle(events.AlertTriggered{Alert: alert, At: time.Now()})
	m.Handle(events.AlertTriggered{Alert: alert, At: time.Now()})
	m.Handle(events.AlertResolved{Alert: alert, At: time.Now()})
	m.Handle(events.AlertAcknowledged{Alert: alert, At: time.Now()})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsTriggered.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsResolved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsAcked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveAlerts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsHandled.WithLabelValues("alert-triggered")))
}

func TestMetrics_HandleDataAndConnection(t *testing.T) {
	m := newTestMetrics()

	m.Handle(events.DataUpdated{Metrics: []types.MetricRecord{
		{EndpointID: "users", ExecutionTime: 120, ResponseSize: 512, Success: true},
		{EndpointID: "users", ExecutionTime: 80, Success: false},
	}})
	m.Handle(events.ConnectionChanged{From: types.StateConnecting, To: types.StateConnected})
	m.Handle(events.NewTransportError("dial", assert.AnError, time.Now()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryCount.WithLabelValues("users", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryCount.WithLabelValues("users", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrors.WithLabelValues("dial")))
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := newTestMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/alerts/{id}", "404")))
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics()
	m.ActiveAlerts.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_alerts_active 3"))
}

func TestMetrics_WebSocketRecorder(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())

	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.MessageSent()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebSocketConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebSocketMessagesSent))
}
