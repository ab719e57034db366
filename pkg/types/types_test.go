package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricRecord_Validate(t *testing.T) {
	base := func() MetricRecord {
		return MetricRecord{
			ID:            "m1",
			EndpointID:    "ep-1",
			Query:         "{ viewer { id } }",
			ExecutionTime: 120,
			ResponseSize:  512,
			Timestamp:     time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			Success:       true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(m *MetricRecord)
		wantErr bool
	}{
		{"valid record", func(m *MetricRecord) {}, false},
		{"zero execution time", func(m *MetricRecord) { m.ExecutionTime = 0 }, false},
		{"empty endpoint", func(m *MetricRecord) { m.EndpointID = "" }, true},
		{"negative execution time", func(m *MetricRecord) { m.ExecutionTime = -1 }, true},
		{"NaN execution time", func(m *MetricRecord) { m.ExecutionTime = math.NaN() }, true},
		{"infinite execution time", func(m *MetricRecord) { m.ExecutionTime = math.Inf(1) }, true},
		{"negative size", func(m *MetricRecord) { m.ResponseSize = -5 }, true},
		{"zero timestamp", func(m *MetricRecord) { m.Timestamp = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewMetricRecord(t *testing.T) {
	ts := time.Now().UTC()
	m, err := NewMetricRecord("ep-1", "query Q { a }", 42, 100, ts, true)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "ep-1", m.EndpointID)

	_, err = NewMetricRecord("ep-1", "q", -1, 100, ts, true)
	assert.Error(t, err)
}

func TestMetricRecord_Value(t *testing.T) {
	m := MetricRecord{ExecutionTime: 12.5, ResponseSize: 2048}

	v, ok := m.Value(FieldExecutionTime)
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	v, ok = m.Value(FieldResponseSize)
	assert.True(t, ok)
	assert.Equal(t, 2048.0, v)

	_, ok = m.Value(MetricField("cpu"))
	assert.False(t, ok)
}

func TestOperator_Compare(t *testing.T) {
	tests := []struct {
		op        Operator
		value     float64
		threshold float64
		expected  bool
	}{
		{OperatorGreaterThan, 201, 200, true},
		{OperatorGreaterThan, 200, 200, false},
		{OperatorLessThan, 199, 200, true},
		{OperatorLessThan, 200, 200, false},
		{OperatorGreaterThanOrEqual, 200, 200, true},
		{OperatorLessThanOrEqual, 200, 200, true},
		{OperatorEquals, 5, 5, true},
		{OperatorNotEquals, 5, 5, false},
		{Operator("between"), 5, 5, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.op.Compare(tt.value, tt.threshold))
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.False(t, Severity("urgent").Valid())
}

func TestCondition_JSONDurationInMilliseconds(t *testing.T) {
	raw := `{"metric":"executionTime","operator":"greaterThan","threshold":500,"duration":300000}`

	var c Condition
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, 5*time.Minute, c.Duration)
	assert.Equal(t, OperatorGreaterThan, c.Operator)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestRuleUpdate_Apply(t *testing.T) {
	rule := AlertRule{
		ID:         "r1",
		Name:       "Slow queries",
		EndpointID: "ep-1",
		Condition: Condition{
			Metric:    FieldExecutionTime,
			Operator:  OperatorGreaterThan,
			Threshold: 200,
			Duration:  time.Minute,
		},
		Severity: SeverityMedium,
		Enabled:  true,
	}

	threshold := 350.0
	enabled := false
	durationMs := int64(120000)
	update := RuleUpdate{Threshold: &threshold, Enabled: &enabled, DurationMs: &durationMs}
	update.Apply(&rule)

	assert.Equal(t, 350.0, rule.Condition.Threshold)
	assert.False(t, rule.Enabled)
	assert.Equal(t, 2*time.Minute, rule.Condition.Duration)
	assert.Equal(t, "Slow queries", rule.Name)
	assert.Equal(t, SeverityMedium, rule.Severity)
	assert.Equal(t, OperatorGreaterThan, rule.Condition.Operator)
}

func TestAlertRule_Validate(t *testing.T) {
	rule := AlertRule{
		Name:       "r",
		EndpointID: "ep",
		Condition:  Condition{Metric: FieldExecutionTime, Operator: OperatorGreaterThan, Threshold: 1},
		Severity:   SeverityHigh,
	}
	assert.NoError(t, rule.Validate())

	rule.Severity = "urgent"
	assert.Error(t, rule.Validate())
}

func TestAlert_Clone(t *testing.T) {
	now := time.Now()
	a := Alert{ID: "a1", ResolvedAt: &now, Values: []float64{1, 2}}
	c := a.Clone()

	c.Values[0] = 99
	*c.ResolvedAt = now.Add(time.Hour)

	assert.Equal(t, 1.0, a.Values[0])
	assert.Equal(t, now, *a.ResolvedAt)
}
