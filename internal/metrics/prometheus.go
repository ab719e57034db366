// Package metrics exposes dashboard activity as Prometheus collectors
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gql-dashboard/internal/events"
	"gql-dashboard/pkg/types"
)

// Metrics holds all Prometheus collectors for the dashboard server
type Metrics struct {
	registry *prometheus.Registry

	// Ingested query metrics
	QueryDuration *prometheus.HistogramVec
	QueryCount    *prometheus.CounterVec
	ResponseBytes *prometheus.HistogramVec

	// Alert lifecycle
	AlertsTriggered *prometheus.CounterVec
	AlertsResolved  prometheus.Counter
	AlertsAcked     prometheus.Counter
	ActiveAlerts    prometheus.Gauge

	// Event fabric
	EventsHandled *prometheus.CounterVec

	// Upstream stream
	StreamState     prometheus.Gauge
	TransportErrors *prometheus.CounterVec

	// HTTP API
	RequestDuration *prometheus.HistogramVec
	RequestCount    *prometheus.CounterVec

	// WebSocket push
	WebSocketConnections  prometheus.Gauge
	WebSocketMessagesSent prometheus.Counter

	ServerUptime prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry that also
// carries the Go and process collectors
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(namespace, reg)
}

// NewMetricsWithRegistry registers the dashboard collectors on reg
func NewMetricsWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "query_duration_seconds",
				Help:      "Execution time of observed GraphQL queries in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "status"},
		),
		QueryCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "queries_total",
				Help:      "Total number of observed GraphQL queries",
			},
			[]string{"endpoint", "status"},
		),
		ResponseBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "response_size_bytes",
				Help:      "Response size of observed GraphQL queries",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"endpoint"},
		),
		AlertsTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "triggered_total",
				Help:      "Total number of alerts triggered",
			},
			[]string{"severity"},
		),
		AlertsResolved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "resolved_total",
				Help:      "Total number of alerts resolved",
			},
		),
		AlertsAcked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "acknowledged_total",
				Help:      "Total number of alert acknowledgements",
			},
		),
		ActiveAlerts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "active",
				Help:      "Current number of unresolved alerts",
			},
		),
		EventsHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "handled_total",
				Help:      "Total number of dashboard events observed",
			},
			[]string{"kind"},
		),
		StreamState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "connection_state",
				Help:      "Upstream stream state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting",
			},
		),
		TransportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "transport_errors_total",
				Help:      "Total number of transport errors",
			},
			[]string{"operation"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		WebSocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "websocket",
				Name:      "connections",
				Help:      "Current number of dashboard WebSocket connections",
			},
		),
		WebSocketMessagesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "websocket",
				Name:      "messages_sent_total",
				Help:      "Total number of WebSocket messages sent",
			},
		),
		ServerUptime: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_uptime_seconds_total",
				Help:      "Total server uptime in seconds",
			},
		),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveQuery records one ingested metric record
func (m *Metrics) ObserveQuery(r *types.MetricRecord) {
	status := "success"
	if r.Failed() {
		status = "error"
	}
	m.QueryDuration.WithLabelValues(r.EndpointID, status).Observe(r.ExecutionTime / 1000)
	m.QueryCount.WithLabelValues(r.EndpointID, status).Inc()
	m.ResponseBytes.WithLabelValues(r.EndpointID).Observe(float64(r.ResponseSize))
}

// Handle implements events.Listener
func (m *Metrics) Handle(e events.Event) {
	m.EventsHandled.WithLabelValues(string(e.Kind())).Inc()

	switch ev := e.(type) {
	case events.AlertTriggered:
		m.AlertsTriggered.WithLabelValues(string(ev.Alert.Severity)).Inc()
		m.ActiveAlerts.Inc()
	case events.AlertResolved:
		m.AlertsResolved.Inc()
		m.ActiveAlerts.Dec()
	case events.AlertAcknowledged:
		m.AlertsAcked.Inc()
	case events.DataUpdated:
		for i := range ev.Metrics {
			m.ObserveQuery(&ev.Metrics[i])
		}
	case events.ConnectionChanged:
		m.StreamState.Set(stateValue(ev.To))
	case events.TransportError:
		m.TransportErrors.WithLabelValues(ev.Operation).Inc()
	}
}

// ClientConnected implements websocket.Recorder
func (m *Metrics) ClientConnected() { m.WebSocketConnections.Inc() }

// ClientDisconnected implements websocket.Recorder
func (m *Metrics) ClientDisconnected() { m.WebSocketConnections.Dec() }

// MessageSent implements websocket.Recorder
func (m *Metrics) MessageSent() { m.WebSocketMessagesSent.Inc() }

func stateValue(s types.ConnectionState) float64 {
	switch s {
	case types.StateConnecting:
		return 1
	case types.StateConnected:
		return 2
	case types.StateReconnecting:
		return 3
	default:
		return 0
	}
}

// Middleware records HTTP request metrics under the matched chi route
// pattern so path parameters do not explode label cardinality
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, route, strconv.Itoa(status)}
		m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.RequestCount.WithLabelValues(labels...).Inc()
	})
}

// StartUptimeCounter increments the uptime counter every second until ctx ends
func (m *Metrics) StartUptimeCounter(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ServerUptime.Inc()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
