package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Operator is a threshold comparison operator
type Operator string

const (
	OperatorGreaterThan        Operator = "greaterThan"
	OperatorLessThan           Operator = "lessThan"
	OperatorGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OperatorLessThanOrEqual    Operator = "lessThanOrEqual"
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "notEquals"
)

// Valid returns true if the operator is known
func (o Operator) Valid() bool {
	switch o {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterThanOrEqual,
		OperatorLessThanOrEqual, OperatorEquals, OperatorNotEquals:
		return true
	}
	return false
}

// Compare applies the operator to value and threshold. greaterThan and
// lessThan are strict.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorGreaterThan:
		return value > threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterThanOrEqual:
		return value >= threshold
	case OperatorLessThanOrEqual:
		return value <= threshold
	case OperatorEquals:
		return value == threshold
	case OperatorNotEquals:
		return value != threshold
	default:
		return false
	}
}

// Severity represents alert severity levels
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is known
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities from low (1) to critical (4); unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AlertStatus represents the lifecycle status of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Condition is the threshold test a rule applies to one metric field.
// Duration is the minimum span a violation must be sustained for.
type Condition struct {
	Metric    MetricField   `json:"metric" yaml:"metric"`
	Operator  Operator      `json:"operator" yaml:"operator"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Duration  time.Duration `json:"-" yaml:"-"`
}

type conditionJSON struct {
	Metric    MetricField `json:"metric"`
	Operator  Operator    `json:"operator"`
	Threshold float64     `json:"threshold"`
	Duration  int64       `json:"duration"`
}

// MarshalJSON encodes Duration as milliseconds
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionJSON{
		Metric:    c.Metric,
		Operator:  c.Operator,
		Threshold: c.Threshold,
		Duration:  c.Duration.Milliseconds(),
	})
}

// UnmarshalJSON decodes Duration from milliseconds
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Metric = raw.Metric
	c.Operator = raw.Operator
	c.Threshold = raw.Threshold
	c.Duration = time.Duration(raw.Duration) * time.Millisecond
	return nil
}

// AlertRule defines when an endpoint should raise an alert
type AlertRule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EndpointID string    `json:"endpointId"`
	Condition  Condition `json:"condition"`
	Severity   Severity  `json:"severity"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the rule's shape
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name cannot be empty")
	}
	if r.EndpointID == "" {
		return errors.New("rule endpoint cannot be empty")
	}
	if !r.Condition.Metric.Valid() {
		return fmt.Errorf("invalid metric: %s", r.Condition.Metric)
	}
	if !r.Condition.Operator.Valid() {
		return fmt.Errorf("invalid operator: %s", r.Condition.Operator)
	}
	if r.Condition.Duration < 0 {
		return errors.New("duration cannot be negative")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", r.Severity)
	}
	return nil
}

// RuleUpdate is a partial update for an AlertRule. Each non-nil field
// replaces the stored value; nil fields are left untouched.
type RuleUpdate struct {
	Name       *string        `json:"name,omitempty"`
	EndpointID *string        `json:"endpointId,omitempty"`
	Metric     *MetricField   `json:"metric,omitempty"`
	Operator   *Operator      `json:"operator,omitempty"`
	Threshold  *float64       `json:"threshold,omitempty"`
	Duration   *time.Duration `json:"-"`
	DurationMs *int64         `json:"duration,omitempty"`
	Severity   *Severity      `json:"severity,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
}

// Apply merges the update into rule field by field
func (u *RuleUpdate) Apply(rule *AlertRule) {
	if u.Name != nil {
		rule.Name = *u.Name
	}
	if u.EndpointID != nil {
		rule.EndpointID = *u.EndpointID
	}
	if u.Metric != nil {
		rule.Condition.Metric = *u.Metric
	}
	if u.Operator != nil {
		rule.Condition.Operator = *u.Operator
	}
	if u.Threshold != nil {
		rule.Condition.Threshold = *u.Threshold
	}
	switch {
	case u.Duration != nil:
		rule.Condition.Duration = *u.Duration
	case u.DurationMs != nil:
		rule.Condition.Duration = time.Duration(*u.DurationMs) * time.Millisecond
	}
	if u.Severity != nil {
		rule.Severity = *u.Severity
	}
	if u.Enabled != nil {
		rule.Enabled = *u.Enabled
	}
}

// Alert is raised by a rule whose condition was violated for its duration
type Alert struct {
	ID             string      `json:"id"`
	RuleID         string      `json:"ruleId"`
	RuleName       string      `json:"ruleName"`
	EndpointID     string      `json:"endpointId"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	Status         AlertStatus `json:"status"`
	TriggeredAt    time.Time   `json:"triggeredAt"`
	AcknowledgedAt *time.Time  `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string      `json:"acknowledgedBy,omitempty"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
	Metric         MetricField `json:"metric"`
	Threshold      float64     `json:"threshold"`
	Values         []float64   `json:"values"`
}

// Clone returns a deep copy of the alert
func (a *Alert) Clone() Alert {
	c := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	c.Values = append([]float64(nil), a.Values...)
	return c
}

// AlertStatistics summarizes all alerts the engine has created
type AlertStatistics struct {
	Total        int              `json:"total"`
	Active       int              `json:"active"`
	Acknowledged int              `json:"acknowledged"`
	Resolved     int              `json:"resolved"`
	ByEndpoint   map[string]int   `json:"byEndpoint"`
	BySeverity   map[Severity]int `json:"bySeverity"`
}
