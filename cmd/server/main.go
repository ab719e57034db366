// server is the dashboard backend binary: it ingests GraphQL request metrics
// from a live stream or HTTP pushes, evaluates alert rules and serves the
// REST, GraphQL and WebSocket APIs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gql-dashboard/internal/alerting"
	"gql-dashboard/internal/analytics"
	"gql-dashboard/internal/api"
	"gql-dashboard/internal/config"
	"gql-dashboard/internal/events"
	"gql-dashboard/internal/gqlquery"
	dashgraphql "gql-dashboard/internal/graphql"
	"gql-dashboard/internal/logging"
	"gql-dashboard/internal/metrics"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/internal/storage"
	"gql-dashboard/internal/timeseries"
	"gql-dashboard/internal/websocket"
)

const kpiInterval = 10 * time.Second

func main() {
	var (
		addr      = flag.String("addr", "", "HTTP listen address (overrides GQL_DASH_HOST/GQL_DASH_PORT)")
		rulesFile = flag.String("rules", "", "YAML alert rules file (overrides GQL_DASH_RULES_FILE)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *rulesFile != "" {
		cfg.Alerting.RulesFile = *rulesFile
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format).
		WithComponent("server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	listen := cfg.Address()
	if *addr != "" {
		listen = *addr
	}
	if err := app.Serve(ctx, listen); err != nil {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components and the resources Close releases
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	service *realtime.Service
	ws      *websocket.Server
	router  *api.Router
	db      *sql.DB
	redis   *redis.Client
}

// newApp wires every component from cfg. Background loops run until ctx ends.
func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	dispatcher := events.NewDispatcher(logger.WithComponent("events"))
	analyzer := gqlquery.NewAnalyzer()

	tsConfig := timeseries.DefaultConfig()
	tsConfig.BufferSize = cfg.Analytics.BufferSize
	tsConfig.BaselineK = cfg.Analytics.BaselineK
	tsConfig.TopN = cfg.Analytics.TopN
	series := timeseries.New(tsConfig, analyzer, logger.WithComponent("timeseries"))

	perfConfig := analytics.DefaultConfig()
	perfConfig.AnomalyThreshold = cfg.Analytics.AnomalyThreshold
	performance := analytics.NewPerformanceAnalytics(perfConfig)

	alertConfig := alerting.DefaultConfig()
	alertConfig.RecencyWindow = cfg.Alerting.RecencyWindow
	engine := alerting.NewEngine(alertConfig, dispatcher, logger.WithComponent("alerting"))

	rules, err := config.LoadRules(cfg.Alerting.RulesFile)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if _, err := engine.AddRule(rule); err != nil {
			return nil, fmt.Errorf("failed to add rule %q: %w", rule.Name, err)
		}
	}
	if len(rules) > 0 {
		logger.Info("Loaded alert rules", "count", len(rules), "file", cfg.Alerting.RulesFile)
	}

	var transport realtime.Transport
	if cfg.Realtime.StreamURL != "" {
		transport = realtime.NewWebSocketTransport(cfg.Realtime.StreamURL)
	}
	a.service = realtime.NewService(realtime.Config{
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		InitialBackoff:       cfg.Realtime.InitialBackoff,
		MaxBackoff:           cfg.Realtime.MaxBackoff,
		OfflineBufferSize:    cfg.Realtime.OfflineBufferSize,
		KPIWindow:            cfg.Realtime.KPIWindow,
	}, transport, series, engine, dispatcher, logger.WithComponent("realtime"))

	deps := api.Dependencies{
		Engine:      engine,
		Series:      series,
		Performance: performance,
		Realtime:    a.service,
	}

	if cfg.Storage.Enabled {
		if a.db, err = storage.Open(ctx, cfg.Storage.Path); err != nil {
			return nil, err
		}
		deps.DB = a.db
		deps.History = storage.NewHistoryStore(a.db, cfg.Storage.MaxHistoryEntries, analyzer, logger.WithComponent("history"))
		deps.Archive = storage.NewAlertArchive(a.db, logger.WithComponent("archive"))
		dispatcher.Subscribe(deps.Archive, deps.Archive.Kinds()...)
	}

	if cfg.Redis.Enabled {
		a.redis, err = events.ConnectRedis(ctx, events.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		dispatcher.Subscribe(events.NewRedisPublisher(a.redis, cfg.Redis.Channel, logger.WithComponent("redis")))
	}

	deps.Metrics = metrics.NewMetrics("gql_dashboard")
	deps.Metrics.StartUptimeCounter(ctx)
	dispatcher.Subscribe(deps.Metrics)

	wsConfig := websocket.DefaultServerConfig()
	wsConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	hub := websocket.NewHub(logger.WithComponent("websocket"), deps.Metrics)
	dispatcher.Subscribe(hub)
	a.ws = websocket.NewServer(wsConfig, hub, logger.WithComponent("websocket"))
	a.ws.Start(ctx)
	deps.WebSocket = a.ws

	if cfg.Realtime.HistoryURL != "" {
		deps.HistoryClient = realtime.NewHistoryClient(cfg.Realtime.HistoryURL, cfg.Realtime.HistoryTimeout,
			logger.WithComponent("history-api"))
	}

	deps.GraphQL, err = dashgraphql.NewSchema(dashgraphql.Dependencies{
		Engine:      engine,
		Series:      series,
		Performance: performance,
		Realtime:    a.service,
		History:     deps.History,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	a.router = api.NewRouter(cfg, deps, logger.WithComponent("http"))

	go a.service.RunKPITicker(ctx, kpiInterval)
	if transport != nil {
		if err := a.service.Connect(ctx); err != nil {
			// The service keeps buffering pushed metrics offline; the stream
			// can be reconnected through the API.
			logger.Warn("Initial stream connection failed", "url", cfg.Realtime.StreamURL, "error", err)
		}
	}

	return a, nil
}

// Handler returns the root HTTP handler
func (a *app) Handler() http.Handler {
	return a.router.Handler()
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
func (a *app) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Dashboard server listening", "addr", addr,
			"graphql", "/graphql", "websocket", "/ws", "metrics", "/metrics")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	// The parent context is already cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck // fresh context for shutdown
}

// Close stops the stream and websocket server and releases storage and Redis
func (a *app) Close() {
	if a.service != nil {
		a.service.Disconnect()
	}
	if a.ws != nil {
		a.ws.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", "error", err)
		}
	}
}
