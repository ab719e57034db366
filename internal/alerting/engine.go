// Package alerting evaluates metric batches against threshold rules with
// sustained-duration semantics and manages the alert lifecycle.
package alerting

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/events"
	"gql-dashboard/internal/logging"
	"gql-dashboard/pkg/types"
)

// Config configures the alerting engine
type Config struct {
	// RecencyWindow is added to a rule's duration to decide which metrics
	// count as recent relative to the newest timestamp in a batch
	RecencyWindow time.Duration `json:"recency_window" yaml:"recency_window"`
	// MaxAlertHistory bounds the history; 0 keeps everything
	MaxAlertHistory int `json:"max_alert_history" yaml:"max_alert_history"`
}

// DefaultConfig returns default alerting configuration
func DefaultConfig() Config {
	return Config{
		RecencyWindow:   5 * time.Minute,
		MaxAlertHistory: 10000,
	}
}

// Engine owns the rule table, the active alerts and the alert history.
// Lifecycle events are published after the engine's lock is released, on
// the goroutine that caused the transition.
type Engine struct {
	mu           sync.RWMutex
	config       Config
	rules        map[string]*types.AlertRule
	activeAlerts map[string]*types.Alert // keyed by rule ID
	alertHistory []*types.Alert
	byID         map[string]*types.Alert
	// metrics at or before a rule's last resolution cannot reopen it
	resolvedAt map[string]time.Time

	dispatcher *events.Dispatcher
	logger     logging.Logger
	now        func() time.Time
}

// NewEngine creates an engine publishing to dispatcher; a nil dispatcher
// gets a private one
func NewEngine(config Config, dispatcher *events.Dispatcher, logger logging.Logger) *Engine {
	if config.RecencyWindow <= 0 {
		config.RecencyWindow = DefaultConfig().RecencyWindow
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}
	return &Engine{
		config:       config,
		rules:        make(map[string]*types.AlertRule),
		activeAlerts: make(map[string]*types.Alert),
		byID:         make(map[string]*types.Alert),
		resolvedAt:   make(map[string]time.Time),
		dispatcher:   dispatcher,
		logger:       logger.WithComponent("alerting"),
		now:          time.Now,
	}
}

// Dispatcher returns the dispatcher lifecycle events are published on
func (e *Engine) Dispatcher() *events.Dispatcher {
	return e.dispatcher
}

// AddRule validates and stores a rule. An empty ID is generated and a zero
// CreatedAt is set to the current time. The stored rule is returned.
func (e *Engine) AddRule(rule types.AlertRule) (types.AlertRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now()
	}
	if err := rule.Validate(); err != nil {
		return types.AlertRule{}, dasherrors.NewValidationError("rule", err.Error(), rule.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.ID]; exists {
		return types.AlertRule{}, dasherrors.NewStandardError(dasherrors.ErrorCodeAlreadyExists,
			fmt.Sprintf("rule '%s' already exists", rule.ID), nil)
	}
	stored := rule
	e.rules[rule.ID] = &stored
	e.logger.Info("Added alert rule", "rule_id", rule.ID, "name", rule.Name)
	return rule, nil
}

// GetRule returns a copy of one rule
func (e *Engine) GetRule(id string) (types.AlertRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rule, ok := e.rules[id]
	if !ok {
		return types.AlertRule{}, dasherrors.NewNotFoundError("rule", id)
	}
	return *rule, nil
}

// GetRules returns every rule ordered by creation time, then ID
func (e *Engine) GetRules() []types.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]types.AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, *r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// UpdateRule merges update into the stored rule. The merged rule must still
// validate; on failure the stored rule is unchanged.
func (e *Engine) UpdateRule(id string, update types.RuleUpdate) (types.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return types.AlertRule{}, dasherrors.NewNotFoundError("rule", id)
	}
	merged := *rule
	update.Apply(&merged)
	if err := merged.Validate(); err != nil {
		return types.AlertRule{}, dasherrors.NewValidationError("rule", err.Error(), id)
	}
	*rule = merged
	e.logger.Info("Updated alert rule", "rule_id", id)
	return merged, nil
}

// DeleteRule removes a rule. Its active alert, if any, is resolved so it
// does not linger without a rule to clear it.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return dasherrors.NewNotFoundError("rule", id)
	}
	delete(e.rules, id)

	var resolved []types.Alert
	if alert, ok := e.activeAlerts[id]; ok {
		resolved = append(resolved, e.resolveLocked(id, alert, e.now()))
	}
	delete(e.resolvedAt, id)
	e.mu.Unlock()

	e.logger.Info("Removed alert rule", "rule_id", id)
	e.publishResolved(resolved)
	return nil
}

// EvaluateMetrics runs every enabled rule against the batch and returns the
// alerts this call opened. "Now" is the newest valid timestamp in the batch;
// a rule looks only at its endpoint's metrics no older than now minus its
// duration plus the recency window. A violation is sustained when the
// violating timestamps span at least the rule's duration. A rule with an
// active alert resolves when it has recent metrics and none of them violate.
func (e *Engine) EvaluateMetrics(batch []types.MetricRecord) []types.Alert {
	return e.evaluate(nil, validMetrics(e.logger, batch))
}

// EvaluateWindow evaluates a newly ingested batch in the context of the
// retained window, which should already contain the batch. A rule opens an
// alert when the batch still violates it and the violations across the
// window are sustained; it resolves when the batch has recent metrics for
// the rule and none of them violate.
func (e *Engine) EvaluateWindow(window, batch []types.MetricRecord) []types.Alert {
	return e.evaluate(validMetrics(e.logger, window), validMetrics(e.logger, batch))
}

func validMetrics(logger logging.Logger, metrics []types.MetricRecord) []types.MetricRecord {
	valid := make([]types.MetricRecord, 0, len(metrics))
	for _, m := range metrics {
		if err := m.Validate(); err != nil {
			logger.Debug("Skipping invalid metric", "metric_id", m.ID, "error", err)
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// evaluate decides triggers over window, or over batch when window is nil,
// and resolutions over batch
func (e *Engine) evaluate(window, batch []types.MetricRecord) []types.Alert {
	triggered := []types.Alert{}
	if len(batch) == 0 {
		return triggered
	}
	now := batch[0].Timestamp
	for _, m := range batch[1:] {
		if m.Timestamp.After(now) {
			now = m.Timestamp
		}
	}

	var resolved []types.Alert

	e.mu.Lock()
	for _, rule := range e.sortedRulesLocked() {
		if !rule.Enabled {
			continue
		}
		since := e.resolvedAt[rule.ID]
		current := evaluateRule(rule, batch, now, since, e.config.RecencyWindow)
		_, active := e.activeAlerts[rule.ID]

		switch {
		case !active && len(current.values) > 0:
			v := current
			if window != nil {
				v = evaluateRule(rule, window, now, since, e.config.RecencyWindow)
			}
			if v.sustained {
				triggered = append(triggered, e.openLocked(rule, v, now))
			}
		case active && current.recent > 0 && len(current.values) == 0:
			resolved = append(resolved, e.resolveLocked(rule.ID, e.activeAlerts[rule.ID], now))
		}
	}
	e.mu.Unlock()

	for i := range triggered {
		e.dispatcher.Publish(events.AlertTriggered{Alert: triggered[i].Clone(), At: now})
	}
	e.publishResolved(resolved)
	return triggered
}

func (e *Engine) publishResolved(resolved []types.Alert) {
	for i := range resolved {
		e.dispatcher.Publish(events.AlertResolved{Alert: resolved[i].Clone(), At: *resolved[i].ResolvedAt})
	}
}

// violation summarizes one rule over one batch
type violation struct {
	recent    int
	values    []float64
	first     time.Time
	last      time.Time
	peak      float64
	sustained bool
}

func evaluateRule(rule *types.AlertRule, metrics []types.MetricRecord, now, since time.Time, recency time.Duration) violation {
	cutoff := now.Add(-(rule.Condition.Duration + recency))
	var v violation
	for i := range metrics {
		m := &metrics[i]
		if m.EndpointID != rule.EndpointID || m.Timestamp.Before(cutoff) {
			continue
		}
		if !since.IsZero() && !m.Timestamp.After(since) {
			continue
		}
		value, ok := m.Value(rule.Condition.Metric)
		if !ok {
			continue
		}
		v.recent++
		if !rule.Condition.Operator.Compare(value, rule.Condition.Threshold) {
			continue
		}
		if len(v.values) == 0 || m.Timestamp.Before(v.first) {
			v.first = m.Timestamp
		}
		if len(v.values) == 0 || m.Timestamp.After(v.last) {
			v.last = m.Timestamp
		}
		if len(v.values) == 0 || value > v.peak {
			v.peak = value
		}
		v.values = append(v.values, value)
	}
	v.sustained = len(v.values) > 0 && v.last.Sub(v.first) >= rule.Condition.Duration
	return v
}

func (e *Engine) sortedRulesLocked() []*types.AlertRule {
	rules := make([]*types.AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules
}

func (e *Engine) openLocked(rule *types.AlertRule, v violation, now time.Time) types.Alert {
	alert := &types.Alert{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		EndpointID:  rule.EndpointID,
		Severity:    rule.Severity,
		Message:     alertMessage(rule, v),
		Status:      types.AlertStatusActive,
		TriggeredAt: now,
		Metric:      rule.Condition.Metric,
		Threshold:   rule.Condition.Threshold,
		Values:      v.values,
	}
	e.activeAlerts[rule.ID] = alert
	e.byID[alert.ID] = alert
	e.addToHistoryLocked(alert)

	e.logger.Warn("Triggered alert",
		"alert_id", alert.ID,
		"rule_id", rule.ID,
		"endpoint_id", rule.EndpointID,
		"severity", string(rule.Severity),
		"violations", len(v.values))
	return alert.Clone()
}

func (e *Engine) resolveLocked(ruleID string, alert *types.Alert, at time.Time) types.Alert {
	alert.Status = types.AlertStatusResolved
	alert.ResolvedAt = &at
	delete(e.activeAlerts, ruleID)
	e.resolvedAt[ruleID] = at

	e.logger.Info("Resolved alert", "alert_id", alert.ID, "rule_id", ruleID)
	return alert.Clone()
}

func alertMessage(rule *types.AlertRule, v violation) string {
	unit := ""
	switch rule.Condition.Metric {
	case types.FieldExecutionTime:
		unit = "ms"
	case types.FieldResponseSize:
		unit = " bytes"
	}
	return fmt.Sprintf("%s: %s %s %g%s sustained for %s on %s (%d violations, peak %.2f%s)",
		rule.Name, rule.Condition.Metric, rule.Condition.Operator, rule.Condition.Threshold, unit,
		v.last.Sub(v.first), rule.EndpointID, len(v.values), v.peak, unit)
}

// addToHistoryLocked appends a new alert; later status changes update the
// same entry. Past the cap the oldest resolved entries are dropped; alerts
// that are still open are never evicted, so the history may exceed the cap
// while more rules than that are firing.
func (e *Engine) addToHistoryLocked(alert *types.Alert) {
	e.alertHistory = append(e.alertHistory, alert)

	over := len(e.alertHistory) - e.config.MaxAlertHistory
	if e.config.MaxAlertHistory <= 0 || over <= 0 {
		return
	}
	kept := e.alertHistory[:0]
	for _, a := range e.alertHistory {
		if over > 0 && e.activeAlerts[a.RuleID] != a {
			delete(e.byID, a.ID)
			over--
			continue
		}
		kept = append(kept, a)
	}
	e.alertHistory = kept
}

// AcknowledgeAlert records who acknowledged an alert. Active alerts move to
// the acknowledged status but still resolve normally; resolved alerts keep
// their status.
func (e *Engine) AcknowledgeAlert(alertID, userID string) (types.Alert, error) {
	if userID == "" {
		return types.Alert{}, dasherrors.NewRequiredFieldError("userId")
	}

	e.mu.Lock()
	alert, ok := e.byID[alertID]
	if !ok {
		e.mu.Unlock()
		return types.Alert{}, dasherrors.NewNotFoundError("alert", alertID)
	}
	now := e.now()
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = userID
	if alert.Status != types.AlertStatusResolved {
		alert.Status = types.AlertStatusAcknowledged
	}
	acked := alert.Clone()
	e.mu.Unlock()

	e.logger.Info("Acknowledged alert", "alert_id", alertID, "user_id", userID)
	e.dispatcher.Publish(events.AlertAcknowledged{Alert: acked.Clone(), At: now})
	return acked, nil
}

// GetActiveAlerts returns unresolved alerts ordered by trigger time
func (e *Engine) GetActiveAlerts() []types.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alerts := make([]types.Alert, 0, len(e.activeAlerts))
	for _, a := range e.activeAlerts {
		alerts = append(alerts, a.Clone())
	}
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].TriggeredAt.Equal(alerts[j].TriggeredAt) {
			return alerts[i].TriggeredAt.Before(alerts[j].TriggeredAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

// ActiveAlertCount returns the number of unresolved alerts
func (e *Engine) ActiveAlertCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeAlerts)
}

// GetAlert returns one alert from the history
func (e *Engine) GetAlert(id string) (types.Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alert, ok := e.byID[id]
	if !ok {
		return types.Alert{}, dasherrors.NewNotFoundError("alert", id)
	}
	return alert.Clone(), nil
}

// GetAlertHistory returns the most recent limit alerts in creation order;
// limit <= 0 returns all of them
func (e *Engine) GetAlertHistory(limit int) []types.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.alertHistory) {
		limit = len(e.alertHistory)
	}
	start := len(e.alertHistory) - limit
	out := make([]types.Alert, 0, limit)
	for _, a := range e.alertHistory[start:] {
		out = append(out, a.Clone())
	}
	return out
}

// GetAlertStatistics counts every alert in the history
func (e *Engine) GetAlertStatistics() types.AlertStatistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := types.AlertStatistics{
		Total:      len(e.alertHistory),
		Active:     len(e.activeAlerts),
		ByEndpoint: make(map[string]int),
		BySeverity: make(map[types.Severity]int),
	}
	for _, a := range e.alertHistory {
		switch a.Status {
		case types.AlertStatusAcknowledged:
			stats.Acknowledged++
		case types.AlertStatusResolved:
			stats.Resolved++
		}
		stats.ByEndpoint[a.EndpointID]++
		stats.BySeverity[a.Severity]++
	}
	return stats
}

// AddEventListener subscribes to one lifecycle event kind
func (e *Engine) AddEventListener(kind events.Kind, listener events.Listener) events.SubscriptionID {
	return e.dispatcher.Subscribe(listener, kind)
}

// RemoveEventListener cancels a subscription
func (e *Engine) RemoveEventListener(id events.SubscriptionID) bool {
	return e.dispatcher.Unsubscribe(id)
}
