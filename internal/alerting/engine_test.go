package alerting

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/events"
	"gql-dashboard/pkg/types"
)

var start = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(DefaultConfig(), nil, nil)
	e.now = func() time.Time { return start.Add(time.Hour) }
	return e
}

func slowQueryRule(threshold float64, duration time.Duration) types.AlertRule {
	return types.AlertRule{
		ID:         "slow-users",
		Name:       "Slow users queries",
		EndpointID: "users-api",
		Condition: types.Condition{
			Metric:    types.FieldExecutionTime,
			Operator:  types.OperatorGreaterThan,
			Threshold: threshold,
			Duration:  duration,
		},
		Severity: types.SeverityHigh,
		Enabled:  true,
	}
}

// metricsAt returns n metrics for users-api spaced step apart from from
func metricsAt(from time.Time, n int, step time.Duration, exec float64) []types.MetricRecord {
	out := make([]types.MetricRecord, n)
	for i := range out {
		ts := from.Add(time.Duration(i) * step)
		out[i] = types.MetricRecord{
			ID:            fmt.Sprintf("m-%d", ts.UnixNano()),
			EndpointID:    "users-api",
			Query:         "{ users { id } }",
			ExecutionTime: exec,
			ResponseSize:  512,
			Timestamp:     ts,
			Success:       true,
		}
	}
	return out
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Handle(e events.Event) { r.events = append(r.events, e) }

func TestEvaluateMetrics_SustainedViolationTriggersOnce(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	rec := &recorder{}
	e.AddEventListener(events.KindAlertTriggered, rec)

	batch := metricsAt(start, 10, time.Minute, 300)
	alerts := e.EvaluateMetrics(batch)

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, "slow-users", alert.RuleID)
	assert.Equal(t, types.SeverityHigh, alert.Severity)
	assert.Equal(t, types.AlertStatusActive, alert.Status)
	assert.Contains(t, alert.Message, "Slow users queries")
	assert.Equal(t, start.Add(9*time.Minute), alert.TriggeredAt)
	assert.Len(t, alert.Values, 10)

	require.Len(t, rec.events, 1)
	assert.Equal(t, alert.ID, rec.events[0].(events.AlertTriggered).Alert.ID)
}

func TestEvaluateMetrics_ShortSpanDoesNotTrigger(t *testing.T) {
	for _, exec := range []float64{300, 1000, 50} {
		e := newTestEngine(t)
		_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
		require.NoError(t, err)

		alerts := e.EvaluateMetrics(metricsAt(start, 4, time.Second, exec))
		assert.Empty(t, alerts, "exec %v", exec)
		assert.Empty(t, e.GetActiveAlerts())
	}
}

func TestEvaluateMetrics_BelowThreshold(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(500, 5*time.Minute))
	require.NoError(t, err)

	alerts := e.EvaluateMetrics(metricsAt(start, 5, time.Minute, 300))
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
	assert.Empty(t, e.GetActiveAlerts())
}

func TestEvaluateMetrics_StrictComparison(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, time.Minute))
	require.NoError(t, err)

	assert.Empty(t, e.EvaluateMetrics(metricsAt(start, 5, time.Minute, 200)))
}

func TestEvaluateMetrics_Resolution(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	rec := &recorder{}
	e.AddEventListener(events.KindAlertResolved, rec)

	triggered := e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))
	require.Len(t, triggered, 1)

	recovery := metricsAt(start.Add(11*time.Minute), 5, time.Minute, 100)
	assert.Empty(t, e.EvaluateMetrics(recovery))

	assert.Empty(t, e.GetActiveAlerts())
	history := e.GetAlertHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, triggered[0].ID, history[0].ID)
	assert.Equal(t, types.AlertStatusResolved, history[0].Status)
	require.NotNil(t, history[0].ResolvedAt)
	assert.Equal(t, start.Add(15*time.Minute), *history[0].ResolvedAt)

	require.Len(t, rec.events, 1)
	assert.Equal(t, triggered[0].ID, rec.events[0].(events.AlertResolved).Alert.ID)
}

func TestEvaluateMetrics_NoRecentMetricsKeepsAlert(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	require.Len(t, e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300)), 1)

	other := metricsAt(start.Add(20*time.Minute), 3, time.Minute, 100)
	for i := range other {
		other[i].EndpointID = "orders-api"
	}
	e.EvaluateMetrics(other)
	assert.Len(t, e.GetActiveAlerts(), 1)
}

func TestEvaluateMetrics_AtMostOneActivePerRule(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	total := 0
	for round := 0; round < 4; round++ {
		batch := metricsAt(start.Add(time.Duration(round)*10*time.Minute), 10, time.Minute, 300)
		total += len(e.EvaluateMetrics(batch))
		assert.Len(t, e.GetActiveAlerts(), 1)
	}
	assert.Equal(t, 1, total)

	// resolution followed by a fresh sustained violation opens a new alert
	e.EvaluateMetrics(metricsAt(start.Add(41*time.Minute), 3, time.Minute, 100))
	require.Empty(t, e.GetActiveAlerts())
	again := e.EvaluateMetrics(metricsAt(start.Add(50*time.Minute), 10, time.Minute, 300))
	require.Len(t, again, 1)
	assert.Len(t, e.GetAlertHistory(0), 2)
}

func TestEvaluateMetrics_IndependentRulesAndDisabled(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	big := slowQueryRule(400, 5*time.Minute)
	big.ID = "large-responses"
	big.Name = "Large responses"
	big.Condition.Metric = types.FieldResponseSize
	_, err = e.AddRule(big)
	require.NoError(t, err)

	off := slowQueryRule(100, time.Minute)
	off.ID = "disabled"
	off.Enabled = false
	_, err = e.AddRule(off)
	require.NoError(t, err)

	alerts := e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))
	require.Len(t, alerts, 2)
	ids := []string{alerts[0].RuleID, alerts[1].RuleID}
	assert.ElementsMatch(t, []string{"slow-users", "large-responses"}, ids)
}

func TestEvaluateMetrics_MixedBatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	batch := metricsAt(start, 10, time.Minute, 300)
	bad := batch[0]
	bad.ExecutionTime = math.NaN()
	bad.Timestamp = start.Add(time.Hour)
	batch = append(batch, bad)

	assert.Len(t, e.EvaluateMetrics(batch), 1)
}

func TestGetActiveAlerts_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))

	first := e.GetActiveAlerts()
	second := e.GetActiveAlerts()
	assert.Equal(t, first, second)

	// returned alerts are copies
	first[0].Values[0] = -1
	assert.Equal(t, 300.0, e.GetActiveAlerts()[0].Values[0])
}

func TestAcknowledgeAlert(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	alert := e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))[0]

	rec := &recorder{}
	e.AddEventListener(events.KindAlertAcknowledged, rec)

	acked, err := e.AcknowledgeAlert(alert.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, types.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "oncall", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Len(t, rec.events, 1)

	// still tracked as active and still resolves
	assert.Len(t, e.GetActiveAlerts(), 1)
	e.EvaluateMetrics(metricsAt(start.Add(11*time.Minute), 3, time.Minute, 100))
	got, err := e.GetAlert(alert.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AlertStatusResolved, got.Status)
	assert.Equal(t, "oncall", got.AcknowledgedBy)

	_, err = e.AcknowledgeAlert("missing", "oncall")
	assert.ErrorIs(t, err, dasherrors.ErrNotFound)
	_, err = e.AcknowledgeAlert(alert.ID, "")
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeRequiredField))
}

func TestGetAlertStatistics(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	crit := slowQueryRule(250, 5*time.Minute)
	crit.ID = "very-slow"
	crit.Severity = types.SeverityCritical
	_, err = e.AddRule(crit)
	require.NoError(t, err)

	e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))
	// 220 clears very-slow but keeps slow-users violating
	e.EvaluateMetrics(metricsAt(start.Add(11*time.Minute), 10, time.Minute, 220))

	stats := e.GetAlertStatistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.ByEndpoint["users-api"])
	assert.Equal(t, 1, stats.BySeverity[types.SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[types.SeverityCritical])
}

func TestRuleCRUD(t *testing.T) {
	e := newTestEngine(t)

	rule, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), rule.CreatedAt)

	_, err = e.AddRule(slowQueryRule(200, 5*time.Minute))
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeAlreadyExists))

	bad := slowQueryRule(200, time.Minute)
	bad.ID = ""
	bad.Condition.Operator = "between"
	_, err = e.AddRule(bad)
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeValidationError))

	generated := slowQueryRule(10, time.Minute)
	generated.ID = ""
	generated, err = e.AddRule(generated)
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
	assert.Len(t, e.GetRules(), 2)

	threshold := 350.0
	disabled := false
	updated, err := e.UpdateRule(rule.ID, types.RuleUpdate{Threshold: &threshold, Enabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, 350.0, updated.Condition.Threshold)
	assert.False(t, updated.Enabled)
	assert.Equal(t, rule.Name, updated.Name)
	assert.Equal(t, 5*time.Minute, updated.Condition.Duration)

	badSeverity := types.Severity("urgent")
	_, err = e.UpdateRule(rule.ID, types.RuleUpdate{Severity: &badSeverity})
	assert.Error(t, err)
	stored, err := e.GetRule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityHigh, stored.Severity)

	_, err = e.UpdateRule("missing", types.RuleUpdate{})
	assert.ErrorIs(t, err, dasherrors.ErrNotFound)

	require.NoError(t, e.DeleteRule(rule.ID))
	_, err = e.GetRule(rule.ID)
	assert.ErrorIs(t, err, dasherrors.ErrNotFound)
	assert.ErrorIs(t, e.DeleteRule(rule.ID), dasherrors.ErrNotFound)
}

func TestDeleteRule_ResolvesActiveAlert(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	require.Len(t, e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300)), 1)

	rec := &recorder{}
	e.AddEventListener(events.KindAlertResolved, rec)

	require.NoError(t, e.DeleteRule("slow-users"))
	assert.Empty(t, e.GetActiveAlerts())
	assert.Len(t, rec.events, 1)
}

func TestRemoveEventListener(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	rec := &recorder{}
	id := e.AddEventListener(events.KindAlertTriggered, rec)
	assert.True(t, e.RemoveEventListener(id))
	assert.False(t, e.RemoveEventListener(id))

	e.EvaluateMetrics(metricsAt(start, 10, time.Minute, 300))
	assert.Empty(t, rec.events)
}

func TestGetAlertHistory_Limit(t *testing.T) {
	e := NewEngine(Config{MaxAlertHistory: 2}, nil, nil)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		base := start.Add(time.Duration(round) * 30 * time.Minute)
		e.EvaluateMetrics(metricsAt(base, 10, time.Minute, 300))
		e.EvaluateMetrics(metricsAt(base.Add(11*time.Minute), 3, time.Minute, 100))
	}

	assert.Len(t, e.GetAlertHistory(0), 2)
	assert.Len(t, e.GetAlertHistory(1), 1)
	assert.Equal(t, 2, e.GetAlertStatistics().Total)
}

func TestEvaluateWindow_ResolvesFromLatestBatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	window := metricsAt(start, 10, time.Minute, 300)
	require.Len(t, e.EvaluateWindow(window, window), 1)

	recovery := metricsAt(start.Add(10*time.Minute), 5, time.Minute, 50)
	window = append(window, recovery...)
	assert.Empty(t, e.EvaluateWindow(window, recovery))
	assert.Empty(t, e.GetActiveAlerts())

	history := e.GetAlertHistory(0)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ResolvedAt)
	assert.Equal(t, start.Add(14*time.Minute), *history[0].ResolvedAt)
}

func TestEvaluateWindow_TriggersOnSpanAcrossBatches(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)

	window := metricsAt(start, 5, time.Minute, 300)
	require.Empty(t, e.EvaluateWindow(window, window))

	next := metricsAt(start.Add(5*time.Minute), 1, time.Minute, 300)
	window = append(window, next...)
	alerts := e.EvaluateWindow(window, next)
	require.Len(t, alerts, 1)
	assert.Len(t, alerts[0].Values, 6)

	// a batch without violations never opens an alert from old points
	e2 := newTestEngine(t)
	_, err = e2.AddRule(slowQueryRule(200, 5*time.Minute))
	require.NoError(t, err)
	calm := metricsAt(start.Add(6*time.Minute), 1, time.Minute, 100)
	assert.Empty(t, e2.EvaluateWindow(append(metricsAt(start, 6, time.Minute, 300), calm...), calm))
}

func TestGetAlertStatistics_CapKeepsActiveAlerts(t *testing.T) {
	e := NewEngine(Config{MaxAlertHistory: 1}, nil, nil)
	for _, id := range []string{"slow-a", "slow-b"} {
		rule := slowQueryRule(200, 0)
		rule.ID = id
		_, err := e.AddRule(rule)
		require.NoError(t, err)
	}

	require.Len(t, e.EvaluateMetrics(metricsAt(start, 1, time.Minute, 300)), 2)

	stats := e.GetAlertStatistics()
	assert.Equal(t, 2, stats.Active)
	assert.GreaterOrEqual(t, stats.Total, stats.Active)
	for _, a := range e.GetActiveAlerts() {
		_, err := e.GetAlert(a.ID)
		assert.NoError(t, err)
	}

	// once resolved, entries beyond the cap are evicted again
	e.EvaluateMetrics(metricsAt(start.Add(time.Minute), 1, time.Minute, 100))
	e.EvaluateMetrics(metricsAt(start.Add(2*time.Minute), 1, time.Minute, 300))
	assert.LessOrEqual(t, len(e.GetAlertHistory(0)), 2)
}
