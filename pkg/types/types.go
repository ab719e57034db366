// Package types provides the core data structures shared across the
// dashboard: query-execution metric records, alert rules, alerts and KPIs.
package types

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// MetricField names a numeric attribute of a MetricRecord
type MetricField string

const (
	// FieldExecutionTime is the query execution time in milliseconds
	FieldExecutionTime MetricField = "executionTime"
	// FieldResponseSize is the response payload size in bytes
	FieldResponseSize MetricField = "responseSize"
)

// Valid returns true if the field is a known numeric field
func (f MetricField) Valid() bool {
	switch f {
	case FieldExecutionTime, FieldResponseSize:
		return true
	}
	return false
}

// MetricFields lists every numeric field in a stable order
func MetricFields() []MetricField {
	return []MetricField{FieldExecutionTime, FieldResponseSize}
}

// MetricRecord is one GraphQL query execution observed against an endpoint.
// Records are immutable once recorded.
type MetricRecord struct {
	ID            string                 `json:"id" mapstructure:"id"`
	EndpointID    string                 `json:"endpointId" mapstructure:"endpointId"`
	Query         string                 `json:"query" mapstructure:"query"`
	OperationName string                 `json:"operationName,omitempty" mapstructure:"operationName"`
	Variables     map[string]interface{} `json:"variables,omitempty" mapstructure:"variables"`
	ExecutionTime float64                `json:"executionTime" mapstructure:"executionTime"`
	ResponseSize  int64                  `json:"responseSize" mapstructure:"responseSize"`
	Timestamp     time.Time              `json:"timestamp" mapstructure:"timestamp"`
	Success       bool                   `json:"success" mapstructure:"success"`
	StatusCode    int                    `json:"statusCode,omitempty" mapstructure:"statusCode"`
	Errors        []string               `json:"errors,omitempty" mapstructure:"errors"`
}

// NewMetricRecord creates a metric record with a generated ID
func NewMetricRecord(endpointID, query string, executionTime float64, responseSize int64, ts time.Time, success bool) (*MetricRecord, error) {
	m := &MetricRecord{
		ID:            uuid.New().String(),
		EndpointID:    endpointID,
		Query:         query,
		ExecutionTime: executionTime,
		ResponseSize:  responseSize,
		Timestamp:     ts,
		Success:       success,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks if the record can be used by the analytics layer
func (m *MetricRecord) Validate() error {
	if m.EndpointID == "" {
		return errors.New("endpoint ID cannot be empty")
	}
	if math.IsNaN(m.ExecutionTime) || math.IsInf(m.ExecutionTime, 0) {
		return fmt.Errorf("execution time must be finite, got %v", m.ExecutionTime)
	}
	if m.ExecutionTime < 0 {
		return fmt.Errorf("execution time cannot be negative: %v", m.ExecutionTime)
	}
	if m.ResponseSize < 0 {
		return fmt.Errorf("response size cannot be negative: %d", m.ResponseSize)
	}
	if m.Timestamp.IsZero() {
		return errors.New("timestamp cannot be zero")
	}
	return nil
}

// Value returns the numeric value of the given field
func (m *MetricRecord) Value(field MetricField) (float64, bool) {
	switch field {
	case FieldExecutionTime:
		return m.ExecutionTime, true
	case FieldResponseSize:
		return float64(m.ResponseSize), true
	}
	return 0, false
}

// Failed reports whether the execution ended in an error
func (m *MetricRecord) Failed() bool {
	return !m.Success || len(m.Errors) > 0
}

// KPISnapshot is the dashboard's key-indicator roll-up over a recent window
type KPISnapshot struct {
	TotalQueries     int       `json:"totalQueries"`
	SuccessRate      float64   `json:"successRate"`
	ErrorRate        float64   `json:"errorRate"`
	AvgResponseTime  float64   `json:"avgResponseTime"`
	P95ResponseTime  float64   `json:"p95ResponseTime"`
	QueriesPerMinute float64   `json:"queriesPerMinute"`
	ActiveAlerts     int       `json:"activeAlerts"`
	Window           string    `json:"window"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ConnectionState is the state of the live metric stream
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)
