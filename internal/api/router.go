// Package api provides the HTTP API layer for the dashboard server.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/graphql-go/handler"

	"gql-dashboard/internal/alerting"
	"gql-dashboard/internal/analytics"
	"gql-dashboard/internal/api/handlers"
	"gql-dashboard/internal/api/middleware"
	"gql-dashboard/internal/api/response"
	"gql-dashboard/internal/config"
	dasherrors "gql-dashboard/internal/errors"
	dashgraphql "gql-dashboard/internal/graphql"
	"gql-dashboard/internal/logging"
	"gql-dashboard/internal/metrics"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/internal/storage"
	"gql-dashboard/internal/timeseries"
	"gql-dashboard/internal/websocket"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// Dependencies are the components the router exposes. Engine, Series,
// Performance and Realtime are required; the rest switch their routes off
// when nil.
type Dependencies struct {
	Engine      *alerting.Engine
	Series      *timeseries.Analytics
	Performance *analytics.PerformanceAnalytics
	Realtime    *realtime.Service

	History       *storage.HistoryStore
	Archive       *storage.AlertArchive
	HistoryClient *realtime.HistoryClient
	DB            *sql.DB
	Metrics       *metrics.Metrics
	WebSocket     *websocket.Server
	GraphQL       *dashgraphql.Schema
}

// Router represents the main API router
type Router struct {
	config *config.Config
	mux    *chi.Mux
	deps   Dependencies
	logger logging.Logger
}

// NewRouter creates a new API router with middleware and routes
func NewRouter(cfg *config.Config, deps Dependencies, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	r := &Router{
		config: cfg,
		mux:    chi.NewRouter(),
		deps:   deps,
		logger: logger,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.mux
}

// setupMiddleware configures the middleware stack
func (r *Router) setupMiddleware() {
	// Recovery middleware (should be first)
	r.mux.Use(chimiddleware.Recoverer)

	r.mux.Use(middleware.NewLoggingMiddleware(r.logger).Handler())

	if r.deps.Metrics != nil {
		r.mux.Use(r.deps.Metrics.Middleware)
	}

	r.mux.Use(middleware.NewCORSMiddleware(middleware.CORSConfig{
		AllowedOrigins: r.config.Server.AllowedOrigins,
	}).Handler())

	// Request timeout middleware - exclude WebSocket endpoints
	r.mux.Use(r.timeoutMiddleware())

	if r.config.Server.MaxBodyBytes > 0 {
		r.mux.Use(chimiddleware.RequestSize(r.config.Server.MaxBodyBytes))
	}

	// Heartbeat for load balancer health checks
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

// timeoutMiddleware creates a timeout middleware that excludes WebSocket endpoints
func (r *Router) timeoutMiddleware() func(http.Handler) http.Handler {
	timeout := time.Duration(r.config.Server.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return func(next http.Handler) http.Handler {
		withTimeout := chimiddleware.Timeout(timeout)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/ws") {
				next.ServeHTTP(w, req)
				return
			}
			withTimeout.ServeHTTP(w, req)
		})
	}
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	health := handlers.NewHealthHandler(Version, r.deps.Realtime, r.deps.DB)
	alerts := handlers.NewAlertHandler(r.deps.Engine, r.deps.Archive)
	metricsHandler := handlers.NewMetricsHandler(r.deps.Realtime, r.deps.Series, r.deps.HistoryClient)
	analyticsHandler := handlers.NewAnalyticsHandler(r.deps.Series, r.deps.Performance)

	r.mux.Get("/", r.handleRoot)
	r.mux.Get("/health", health.Handle)
	r.mux.Get("/readiness", health.HandleReadiness)
	r.mux.Get("/liveness", health.HandleLiveness)

	if r.deps.Metrics != nil {
		r.mux.Method(http.MethodGet, "/metrics", r.deps.Metrics.Handler())
	}

	if r.deps.WebSocket != nil {
		r.mux.Get("/ws", r.deps.WebSocket.HandleUpgrade)
	}

	if r.deps.GraphQL != nil {
		schema := r.deps.GraphQL.GetSchema()
		gql := handler.New(&handler.Config{
			Schema:   &schema,
			Pretty:   true,
			GraphiQL: r.config.Server.EnableGraphiQL,
		})
		r.mux.Method(http.MethodGet, "/graphql", gql)
		r.mux.Method(http.MethodPost, "/graphql", gql)
	}

	r.mux.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", health.Handle)

		api.Route("/metrics", func(m chi.Router) {
			m.Get("/", metricsHandler.List)
			m.Post("/", metricsHandler.Ingest)
			m.Get("/resolutions", metricsHandler.Resolutions)
			m.Post("/backfill", metricsHandler.Backfill)
		})
		api.Get("/kpis", metricsHandler.KPIs)

		api.Route("/stream", func(s chi.Router) {
			s.Get("/", metricsHandler.Status)
			s.Post("/connect", metricsHandler.Connect)
			s.Post("/disconnect", metricsHandler.Disconnect)
		})

		api.Route("/alerts", func(a chi.Router) {
			a.Get("/", alerts.ListActive)
			a.Get("/history", alerts.History)
			a.Get("/statistics", alerts.Statistics)
			a.Get("/archive", alerts.Archive)
			a.Get("/{id}", alerts.Get)
			a.Post("/{id}/acknowledge", alerts.Acknowledge)
		})

		api.Route("/rules", func(rr chi.Router) {
			rr.Get("/", alerts.ListRules)
			rr.Post("/", alerts.CreateRule)
			rr.Get("/{id}", alerts.GetRule)
			rr.Patch("/{id}", alerts.UpdateRule)
			rr.Delete("/{id}", alerts.DeleteRule)
		})

		api.Route("/analytics", func(an chi.Router) {
			an.Get("/aggregate", analyticsHandler.Aggregate)
			an.Get("/trend", analyticsHandler.Trend)
			an.Get("/percentiles", analyticsHandler.Percentiles)
			an.Get("/anomalies", analyticsHandler.Anomalies)
			an.Get("/forecast", analyticsHandler.Forecast)
			an.Get("/drilldown", analyticsHandler.DrillDown)
			an.Get("/statistics", analyticsHandler.Statistics)
			an.Get("/correlation", analyticsHandler.Correlation)
			an.Get("/seasonality", analyticsHandler.Seasonality)
			an.Get("/baseline", analyticsHandler.Baseline)
			an.Get("/compare", analyticsHandler.Compare)
		})

		if r.deps.History != nil {
			history := handlers.NewHistoryHandler(r.deps.History)
			api.Route("/history", func(h chi.Router) {
				h.Get("/", history.List)
				h.Post("/", history.Create)
				h.Delete("/", history.Clear)
				h.Get("/usage", history.Usage)
				h.Get("/{id}", history.Get)
				h.Delete("/{id}", history.Delete)
				h.Put("/{id}/favorite", history.SetFavorite)
				h.Post("/{id}/use", history.MarkUsed)
			})
		}
	})

	// 404 handler
	r.mux.NotFound(r.handleNotFound)

	// 405 handler
	r.mux.MethodNotAllowed(r.handleMethodNotAllowed)
}

// handleRoot handles requests to the root endpoint
func (r *Router) handleRoot(w http.ResponseWriter, _ *http.Request) {
	endpoints := map[string]string{
		"health":    "/health",
		"readiness": "/readiness",
		"liveness":  "/liveness",
		"api":       "/api/v1",
	}
	if r.deps.GraphQL != nil {
		endpoints["graphql"] = "/graphql"
	}
	if r.deps.WebSocket != nil {
		endpoints["websocket"] = "/ws"
	}
	if r.deps.Metrics != nil {
		endpoints["metrics"] = "/metrics"
	}
	if r.deps.History != nil {
		endpoints["history"] = "/api/v1/history"
	}

	serverInfo := map[string]interface{}{
		"server":      "gql-dashboard",
		"version":     Version,
		"api_version": "v1",
		"endpoints":   endpoints,
		"status":      "running",
		"features": map[string]bool{
			"graphql":       r.deps.GraphQL != nil,
			"graphiql":      r.deps.GraphQL != nil && r.config.Server.EnableGraphiQL,
			"websocket":     r.deps.WebSocket != nil,
			"query_history": r.deps.History != nil,
			"alert_archive": r.deps.Archive != nil,
			"backfill":      r.deps.HistoryClient != nil,
			"live_stream":   r.deps.Realtime != nil && r.deps.Realtime.Status().StreamEnabled,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(serverInfo)
}

// handleNotFound handles 404 errors
func (r *Router) handleNotFound(w http.ResponseWriter, req *http.Request) {
	response.WriteError(w, dasherrors.NewStandardError(dasherrors.ErrorCodeNotFound,
		"Endpoint not found", map[string]string{"path": req.URL.Path}))
}

// handleMethodNotAllowed handles 405 errors
func (r *Router) handleMethodNotAllowed(w http.ResponseWriter, req *http.Request) {
	response.WriteMethodNotAllowed(w, req.Method)
}
