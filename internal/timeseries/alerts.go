package timeseries

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

// StreamAlertRule fires when WindowSize consecutive matching points satisfy
// the comparison. An empty EndpointID matches every endpoint.
type StreamAlertRule struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	EndpointID string            `json:"endpointId,omitempty" yaml:"endpoint"`
	Metric     types.MetricField `json:"metric" yaml:"metric"`
	Operator   types.Operator    `json:"operator" yaml:"operator"`
	Threshold  float64           `json:"threshold" yaml:"threshold"`
	WindowSize int               `json:"windowSize" yaml:"window"`
	Severity   types.Severity    `json:"severity" yaml:"severity"`
}

// Validate checks the rule definition
func (r *StreamAlertRule) Validate() error {
	if r.ID == "" {
		return dasherrors.NewRequiredFieldError("id")
	}
	if !r.Metric.Valid() {
		return dasherrors.NewValidationError("metric", "unknown metric", r.Metric)
	}
	if !r.Operator.Valid() {
		return dasherrors.NewValidationError("operator", "unknown operator", r.Operator)
	}
	if r.WindowSize <= 0 {
		return dasherrors.NewValidationError("windowSize", "must be positive", r.WindowSize)
	}
	if !r.Severity.Valid() {
		return dasherrors.NewValidationError("severity", "unknown severity", r.Severity)
	}
	return nil
}

func (r *StreamAlertRule) matches(m *types.MetricRecord) bool {
	return r.EndpointID == "" || r.EndpointID == m.EndpointID
}

// StreamAlert is emitted when a stream rule's window is satisfied
type StreamAlert struct {
	ID         string         `json:"id"`
	RuleID     string         `json:"ruleId"`
	RuleName   string         `json:"ruleName"`
	EndpointID string         `json:"endpointId"`
	Severity   types.Severity `json:"severity"`
	Message    string         `json:"message"`
	Threshold  float64        `json:"threshold"`
	Values     []float64      `json:"values"`
	Timestamp  time.Time      `json:"timestamp"`
}

// streamAlertState tracks the current satisfying run of one rule.
// fired latches until a non-satisfying point re-arms the rule.
type streamAlertState struct {
	run   []float64
	fired bool
}

// ConfigureRealTimeAlerts replaces the stream rule set and clears all
// window state. The whole set is rejected if any rule is invalid.
func (a *Analytics) ConfigureRealTimeAlerts(rules []StreamAlertRule) error {
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return fmt.Errorf("stream rule %d: %w", i, err)
		}
		if seen[rules[i].ID] {
			return dasherrors.NewStandardError(dasherrors.ErrorCodeAlreadyExists,
				fmt.Sprintf("duplicate stream rule id '%s'", rules[i].ID), nil)
		}
		seen[rules[i].ID] = true
	}

	a.alertMu.Lock()
	defer a.alertMu.Unlock()
	a.alertRules = append([]StreamAlertRule(nil), rules...)
	a.alertStates = make(map[string]*streamAlertState, len(rules))
	for _, r := range rules {
		a.alertStates[r.ID] = &streamAlertState{}
	}
	a.logger.Info("Configured stream alert rules", "count", len(rules))
	return nil
}

// StreamAlertRules returns a copy of the configured rules
func (a *Analytics) StreamAlertRules() []StreamAlertRule {
	a.alertMu.Lock()
	defer a.alertMu.Unlock()
	return append([]StreamAlertRule(nil), a.alertRules...)
}

// ProcessStreamForAlerts feeds the batch through every rule in timestamp
// order. A rule fires once when its last WindowSize matching points all
// satisfy the comparison and fires again only after a point breaks the run.
// Window state persists across calls.
func (a *Analytics) ProcessStreamForAlerts(batch []types.MetricRecord) []StreamAlert {
	points := validSorted(batch)
	out := []StreamAlert{}

	a.alertMu.Lock()
	defer a.alertMu.Unlock()

	for i := range points {
		m := &points[i]
		for _, rule := range a.alertRules {
			if !rule.matches(m) {
				continue
			}
			state := a.alertStates[rule.ID]
			value, _ := m.Value(rule.Metric)
			if !rule.Operator.Compare(value, rule.Threshold) {
				state.run = state.run[:0]
				state.fired = false
				continue
			}

			state.run = append(state.run, value)
			if len(state.run) > rule.WindowSize {
				state.run = state.run[len(state.run)-rule.WindowSize:]
			}
			if state.fired || len(state.run) < rule.WindowSize {
				continue
			}

			state.fired = true
			out = append(out, StreamAlert{
				ID:         uuid.New().String(),
				RuleID:     rule.ID,
				RuleName:   rule.Name,
				EndpointID: m.EndpointID,
				Severity:   rule.Severity,
				Message: fmt.Sprintf("%s: %s %s %g for %d consecutive points",
					rule.Name, rule.Metric, rule.Operator, rule.Threshold, rule.WindowSize),
				Threshold: rule.Threshold,
				Values:    append([]float64(nil), state.run...),
				Timestamp: m.Timestamp,
			})
		}
	}

	if len(out) > 0 {
		a.logger.Info("Stream alerts fired", "count", len(out))
	}
	return out
}
