package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "GQL_DASH_"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Analytics AnalyticsConfig `json:"analytics"`
	Alerting  AlertingConfig  `json:"alerting"`
	Realtime  RealtimeConfig  `json:"realtime"`
	Storage   StorageConfig   `json:"storage"`
	Redis     RedisConfig     `json:"redis"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	ReadTimeout    int    `json:"read_timeout_seconds"`
	WriteTimeout   int    `json:"write_timeout_seconds"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	MaxBodyBytes   int64  `json:"max_body_bytes"`
	EnableGraphiQL bool   `json:"enable_graphiql"`

	// AllowedOrigins lists CORS and websocket origins; "*" allows any
	AllowedOrigins []string `json:"allowed_origins"`
}

// AnalyticsConfig tunes the analytics components
type AnalyticsConfig struct {
	BufferSize       int     `json:"buffer_size"`
	AnomalyThreshold float64 `json:"anomaly_threshold"`
	BaselineK        float64 `json:"baseline_k"`
	TopN             int     `json:"top_n"`
}

// AlertingConfig tunes the alerting engine
type AlertingConfig struct {
	RecencyWindow time.Duration `json:"recency_window"`
	RulesFile     string        `json:"rules_file,omitempty"`
}

// RealtimeConfig represents the live stream and history API configuration
type RealtimeConfig struct {
	StreamURL            string        `json:"stream_url,omitempty"`
	HistoryURL           string        `json:"history_url,omitempty"`
	HistoryTimeout       time.Duration `json:"history_timeout"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	InitialBackoff       time.Duration `json:"initial_backoff"`
	MaxBackoff           time.Duration `json:"max_backoff"`
	OfflineBufferSize    int           `json:"offline_buffer_size"`
	KPIWindow            time.Duration `json:"kpi_window"`
}

// StorageConfig represents the SQLite storage configuration
type StorageConfig struct {
	Enabled           bool   `json:"enabled"`
	Path              string `json:"path"`
	MaxHistoryEntries int    `json:"max_history_entries"`
}

// RedisConfig represents the Redis event forwarder configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"-"` // Never serialize password
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "localhost",
			ReadTimeout:    30,
			WriteTimeout:   30,
			RequestTimeout: 60,
			MaxBodyBytes:   10 * 1024 * 1024,
			EnableGraphiQL: true,
			AllowedOrigins: []string{"*"},
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			AnomalyThreshold: 3.0,
			BaselineK:        2.0,
			TopN:             10,
		},
		Alerting: AlertingConfig{
			RecencyWindow: 5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			HistoryTimeout:       10 * time.Second,
			MaxReconnectAttempts: 5,
			InitialBackoff:       time.Second,
			MaxBackoff:           30 * time.Second,
			OfflineBufferSize:    1000,
			KPIWindow:            time.Hour,
		},
		Storage: StorageConfig{
			Enabled:           true,
			Path:              "./data/dashboard.db",
			MaxHistoryEntries: 1000,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "gql-dashboard:events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from environment variables and defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Don't fail if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadAnalyticsConfig(config)
	loadAlertingConfig(config)
	loadRealtimeConfig(config)
	loadStorageConfig(config)
	loadRedisConfig(config)
	loadLoggingConfig(config)
}

// Invalid values are ignored and the previous value is kept.
func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(config *Config) {
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envInt("READ_TIMEOUT_SECONDS", &config.Server.ReadTimeout)
	envInt("WRITE_TIMEOUT_SECONDS", &config.Server.WriteTimeout)
	envInt("REQUEST_TIMEOUT_SECONDS", &config.Server.RequestTimeout)
	envInt64("MAX_BODY_BYTES", &config.Server.MaxBodyBytes)
	envBool("GRAPHIQL", &config.Server.EnableGraphiQL)
	if v := os.Getenv(envPrefix + "ALLOWED_ORIGINS"); v != "" {
		config.Server.AllowedOrigins = splitList(v)
	}
}

// splitList splits a comma-separated value, dropping empty items
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadAnalyticsConfig(config *Config) {
	envInt("BUFFER_SIZE", &config.Analytics.BufferSize)
	envFloat("ANOMALY_THRESHOLD", &config.Analytics.AnomalyThreshold)
	envFloat("BASELINE_K", &config.Analytics.BaselineK)
	envInt("TOP_N", &config.Analytics.TopN)
}

func loadAlertingConfig(config *Config) {
	envDuration("RECENCY_WINDOW", &config.Alerting.RecencyWindow)
	envString("RULES_FILE", &config.Alerting.RulesFile)
}

// loadRealtimeConfig loads stream and history client settings
func loadRealtimeConfig(config *Config) {
	envString("STREAM_URL", &config.Realtime.StreamURL)
	envString("HISTORY_URL", &config.Realtime.HistoryURL)
	envDuration("HISTORY_TIMEOUT", &config.Realtime.HistoryTimeout)
	envInt("MAX_RECONNECT_ATTEMPTS", &config.Realtime.MaxReconnectAttempts)
	envDuration("INITIAL_BACKOFF", &config.Realtime.InitialBackoff)
	envDuration("MAX_BACKOFF", &config.Realtime.MaxBackoff)
	envInt("OFFLINE_BUFFER_SIZE", &config.Realtime.OfflineBufferSize)
	envDuration("KPI_WINDOW", &config.Realtime.KPIWindow)
}

func loadStorageConfig(config *Config) {
	envBool("STORAGE_ENABLED", &config.Storage.Enabled)
	envString("STORAGE_PATH", &config.Storage.Path)
	envInt("MAX_HISTORY_ENTRIES", &config.Storage.MaxHistoryEntries)
}

// loadRedisConfig loads Redis configuration, accepting the unprefixed
// REDIS_URL-style address as a fallback
func loadRedisConfig(config *Config) {
	envBool("REDIS_ENABLED", &config.Redis.Enabled)
	if addr := os.Getenv(envPrefix + "REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	} else if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)
	envString("REDIS_CHANNEL", &config.Redis.Channel)
}

// loadLoggingConfig loads logging configuration from environment
func loadLoggingConfig(config *Config) {
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	// Validate analytics config
	if c.Analytics.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.Analytics.AnomalyThreshold <= 0 {
		return fmt.Errorf("anomaly threshold must be positive")
	}
	if c.Analytics.BaselineK <= 0 {
		return fmt.Errorf("baseline k must be positive")
	}

	if c.Alerting.RecencyWindow < 0 {
		return fmt.Errorf("recency window cannot be negative")
	}

	// Validate realtime config
	if c.Realtime.MaxReconnectAttempts < 1 {
		return fmt.Errorf("max reconnect attempts must be at least 1")
	}
	if c.Realtime.HistoryTimeout <= 0 {
		return fmt.Errorf("history timeout must be positive")
	}
	if c.Realtime.MaxBackoff < c.Realtime.InitialBackoff {
		return fmt.Errorf("max backoff must not be less than initial backoff")
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty when storage is enabled")
	}
	if c.Storage.MaxHistoryEntries < 0 {
		return fmt.Errorf("max history entries cannot be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty when redis is enabled")
	}

	return nil
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
