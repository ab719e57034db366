package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/pkg/types"
)

func slowRule() StreamAlertRule {
	return StreamAlertRule{
		ID:         "slow",
		Name:       "Slow queries",
		EndpointID: "users",
		Metric:     types.FieldExecutionTime,
		Operator:   types.OperatorGreaterThan,
		Threshold:  200,
		WindowSize: 3,
		Severity:   types.SeverityHigh,
	}
}

func TestProcessStreamForAlerts_FiresOncePerRun(t *testing.T) {
	a := newAnalytics(t, nil)
	require.NoError(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{slowRule()}))

	alerts := a.ProcessStreamForAlerts(seriesOf([]float64{250, 260}, time.Second))
	assert.Empty(t, alerts)

	// window state carries across batches
	next := seriesOf([]float64{270, 280}, time.Second)
	for i := range next {
		next[i].Timestamp = next[i].Timestamp.Add(time.Minute)
	}
	alerts = a.ProcessStreamForAlerts(next)
	require.Len(t, alerts, 1)
	assert.Equal(t, "slow", alerts[0].RuleID)
	assert.Equal(t, []float64{250, 260, 270}, alerts[0].Values)
	assert.Equal(t, types.SeverityHigh, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].ID)
}

func TestProcessStreamForAlerts_RearmsAfterRecovery(t *testing.T) {
	a := newAnalytics(t, nil)
	require.NoError(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{slowRule()}))

	values := []float64{250, 250, 250, 250, 100, 250, 250, 250}
	alerts := a.ProcessStreamForAlerts(seriesOf(values, time.Second))

	require.Len(t, alerts, 2)
	assert.Equal(t, baseTime.Add(2*time.Second), alerts[0].Timestamp)
	assert.Equal(t, baseTime.Add(7*time.Second), alerts[1].Timestamp)
}

func TestProcessStreamForAlerts_EndpointFilter(t *testing.T) {
	a := newAnalytics(t, nil)
	require.NoError(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{slowRule()}))

	batch := seriesOf([]float64{250, 250, 250}, time.Second)
	for i := range batch {
		batch[i].EndpointID = "orders"
	}
	assert.Empty(t, a.ProcessStreamForAlerts(batch))
}

func TestConfigureRealTimeAlerts_Validation(t *testing.T) {
	a := newAnalytics(t, nil)

	bad := slowRule()
	bad.WindowSize = 0
	assert.Error(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{bad}))

	bad = slowRule()
	bad.Operator = "between"
	assert.Error(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{bad}))

	assert.Error(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{slowRule(), slowRule()}))

	require.NoError(t, a.ConfigureRealTimeAlerts([]StreamAlertRule{slowRule()}))
	assert.Len(t, a.StreamAlertRules(), 1)
}

func TestProcessStreamForAlerts_NoRules(t *testing.T) {
	a := newAnalytics(t, nil)
	assert.Empty(t, a.ProcessStreamForAlerts(seriesOf([]float64{1000}, time.Second)))
}
