// Package handlers provides HTTP request handlers for the dashboard API.
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"gql-dashboard/internal/api/response"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/pkg/types"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthHandler provides health check functionality
type HealthHandler struct {
	version   string
	realtime  *realtime.Service
	db        *sql.DB
	startTime time.Time
}

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status    string           `json:"status"`
	Server    string           `json:"server"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	System    SystemInfo       `json:"system"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo represents system information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemoryMB     uint64 `json:"memory_mb"`
}

// NewHealthHandler creates a health handler. db may be nil when storage is
// disabled.
func NewHealthHandler(version string, svc *realtime.Service, db *sql.DB) *HealthHandler {
	return &HealthHandler{
		version:   version,
		realtime:  svc,
		db:        db,
		startTime: time.Now(),
	}
}

// Handle reports component health. Unhealthy components answer 503; a
// configured stream that is not connected only degrades the status.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]Check{
		"stream":  h.checkStream(),
		"storage": h.checkStorage(ctx),
	}
	status := HealthStatus{
		Status:    overallStatus(checks),
		Server:    "gql-dashboard",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		System:    systemInfo(),
	}

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	response.WriteSuccess(w, code, status)
}

// HandleReadiness answers 200 once storage is reachable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	check := h.checkStorage(r.Context())
	code := http.StatusOK
	if check.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	response.WriteSuccess(w, code, map[string]interface{}{"ready": code == http.StatusOK, "storage": check})
}

// HandleLiveness always answers 200 while the process serves requests
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, map[string]string{"status": "alive"})
}

func (h *HealthHandler) checkStream() Check {
	if h.realtime == nil {
		return Check{Status: StatusHealthy, Message: "no realtime service"}
	}
	st := h.realtime.Status()
	switch {
	case !st.StreamEnabled:
		return Check{Status: StatusHealthy, Message: "push ingestion only"}
	case st.State == types.StateConnected:
		return Check{Status: StatusHealthy, Message: "connected"}
	default:
		return Check{Status: StatusDegraded, Message: string(st.State)}
	}
}

func (h *HealthHandler) checkStorage(ctx context.Context) Check {
	if h.db == nil {
		return Check{Status: StatusHealthy, Message: "disabled"}
	}
	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		return Check{Status: StatusUnhealthy, Message: err.Error()}
	}
	return Check{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func overallStatus(checks map[string]Check) string {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		MemoryMB:     m.Alloc / 1024 / 1024,
	}
}
