package analytics

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

var baseTime = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC) // a Wednesday

func metric(endpoint string, exec float64, ts time.Time) types.MetricRecord {
	return types.MetricRecord{
		ID:            fmt.Sprintf("%s-%d", endpoint, ts.UnixNano()),
		EndpointID:    endpoint,
		Query:         "{ users { id } }",
		ExecutionTime: exec,
		ResponseSize:  int64(exec * 10),
		Timestamp:     ts,
		Success:       true,
	}
}

func series(values []float64, step time.Duration) []types.MetricRecord {
	out := make([]types.MetricRecord, len(values))
	for i, v := range values {
		out[i] = metric("users", v, baseTime.Add(time.Duration(i)*step))
	}
	return out
}

func TestCalculatePercentiles_Ordering(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	inputs := [][]float64{
		{120},
		{5, 1, 9, 3},
		{100, 100, 100, 100},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 1000},
	}
	for _, values := range inputs {
		p, err := pa.CalculatePercentiles(series(values, time.Second), types.FieldExecutionTime)
		require.NoError(t, err)
		assert.LessOrEqual(t, p.P50, p.P90)
		assert.LessOrEqual(t, p.P90, p.P95)
		assert.LessOrEqual(t, p.P95, p.P99)
	}
}

func TestCalculatePercentiles_SingleSample(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	p, err := pa.CalculatePercentiles(series([]float64{42}, time.Second), types.FieldExecutionTime)
	require.NoError(t, err)
	assert.Equal(t, Percentiles{Count: 1, P50: 42, P90: 42, P95: 42, P99: 42}, *p)
}

func TestCalculatePercentiles_Errors(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	_, err := pa.CalculatePercentiles(nil, types.FieldExecutionTime)
	assert.ErrorIs(t, err, dasherrors.ErrInsufficientData)

	_, err = pa.CalculatePercentiles(series([]float64{1}, time.Second), "cpu")
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeValidationError))
}

func TestAggregateByTimeWindow_SingleHour(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())
	values := []float64{100, 200, 300, 400, 500}

	windows, err := pa.AggregateByTimeWindow(series(values, 5*time.Minute), WindowHour)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	assert.Equal(t, len(values), windows[0].Count)
	assert.InDelta(t, Mean(values), windows[0].MeanExecutionTime, 1e-9)
	assert.Equal(t, baseTime, windows[0].Start)
}

func TestAggregateByTimeWindow_Ordering(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	metrics := []types.MetricRecord{
		metric("orders", 10, baseTime.Add(90*time.Minute)),
		metric("users", 20, baseTime.Add(90*time.Minute)),
		metric("users", 30, baseTime),
		metric("orders", 40, baseTime.Add(10*time.Minute)),
	}
	metrics[0].Success = false

	windows, err := pa.AggregateByTimeWindow(metrics, WindowHour)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	assert.Equal(t, "orders", windows[0].EndpointID)
	assert.Equal(t, baseTime, windows[0].Start)
	assert.Equal(t, "users", windows[1].EndpointID)
	assert.Equal(t, baseTime.Add(time.Hour), windows[2].Start)
	assert.Equal(t, "orders", windows[2].EndpointID)
	assert.Equal(t, 1, windows[2].ErrorCount)
}

func TestAggregateByTimeWindow_EmptyAndInvalid(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	windows, err := pa.AggregateByTimeWindow(nil, WindowDay)
	require.NoError(t, err)
	assert.Empty(t, windows)

	_, err = pa.AggregateByTimeWindow(nil, "fortnight")
	assert.Error(t, err)

	bad := metric("users", math.NaN(), baseTime)
	windows, err = pa.AggregateByTimeWindow([]types.MetricRecord{bad, metric("users", 10, baseTime)}, WindowDay)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].Count)
}

func TestWindow_Truncate(t *testing.T) {
	ts := time.Date(2024, 3, 6, 10, 42, 13, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC), WindowHour.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), WindowDay.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), WindowWeek.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), WindowMonth.Truncate(ts))

	sunday := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), WindowWeek.Truncate(sunday))

	local := time.Date(2024, 3, 6, 1, 0, 0, 0, time.FixedZone("X", 3*3600))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), WindowDay.Truncate(local))
}

func TestCalculatePerformanceTrend(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	tests := []struct {
		name   string
		values []float64
		want   TrendDirection
	}{
		{"rising latency degrades", []float64{100, 120, 140, 160, 180}, TrendDegrading},
		{"falling latency improves", []float64{200, 180, 160, 140, 120}, TrendImproving},
		{"flat is stable", []float64{100, 101, 99, 100, 101}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, err := pa.CalculatePerformanceTrend(series(tt.values, time.Minute), types.FieldExecutionTime)
			require.NoError(t, err)
			assert.Equal(t, tt.want, trend.Direction)
			assert.Equal(t, len(tt.values), trend.DataPoints)
		})
	}

	trend, err := pa.CalculatePerformanceTrend(series([]float64{100, 120, 140, 160, 180}, time.Minute), types.FieldExecutionTime)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/60.0, trend.Slope, 1e-9)
	assert.InDelta(t, 80, trend.PercentChange, 1e-9)
	assert.InDelta(t, 1, trend.Confidence, 1e-9)
}

func TestCalculatePerformanceTrend_InsufficientData(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	_, err := pa.CalculatePerformanceTrend(series([]float64{100}, time.Minute), types.FieldExecutionTime)
	assert.ErrorIs(t, err, dasherrors.ErrInsufficientData)
}

func stableValues(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i%11-5)
	}
	return values
}

func TestDetectAnomalies(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	values := stableValues(50)
	anomalies, err := pa.DetectAnomalies(series(values, time.Minute), types.FieldExecutionTime)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	values[25] = 300
	metrics := series(values, time.Minute)
	anomalies, err = pa.DetectAnomalies(metrics, types.FieldExecutionTime)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)

	assert.Equal(t, metrics[25].ID, anomalies[0].MetricID)
	assert.Equal(t, 300.0, anomalies[0].Value)
	assert.Greater(t, anomalies[0].DeviationScore, 3.0)
	assert.Equal(t, types.SeverityCritical, anomalies[0].Severity)
}

func TestDetectAnomalies_ConstantSeries(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	anomalies, err := pa.DetectAnomalies(series([]float64{5, 5, 5, 5}, time.Minute), types.FieldExecutionTime)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestSeverityForScore(t *testing.T) {
	assert.Equal(t, types.SeverityLow, SeverityForScore(3.1, 3))
	assert.Equal(t, types.SeverityMedium, SeverityForScore(3.6, 3))
	assert.Equal(t, types.SeverityHigh, SeverityForScore(4.5, 3))
	assert.Equal(t, types.SeverityCritical, SeverityForScore(6, 3))
}

func TestGeneratePerformanceForecast(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())
	metrics := series([]float64{100, 110, 118, 131, 140, 149}, time.Minute)

	forecast, err := pa.GeneratePerformanceForecast(metrics, types.FieldExecutionTime, 3)
	require.NoError(t, err)
	require.Len(t, forecast.Points, 3)
	assert.Equal(t, time.Minute, forecast.Interval)

	last := metrics[len(metrics)-1].Timestamp
	for i, p := range forecast.Points {
		assert.Equal(t, last.Add(time.Duration(i+1)*time.Minute), p.Timestamp)
		assert.LessOrEqual(t, p.ConfidenceInterval.Lower, p.PredictedValue)
		assert.GreaterOrEqual(t, p.ConfidenceInterval.Upper, p.PredictedValue)
		assert.GreaterOrEqual(t, p.ConfidenceInterval.Lower, 0.0)
	}
	assert.Greater(t, forecast.Points[2].PredictedValue, forecast.Points[0].PredictedValue)
}

func TestGeneratePerformanceForecast_Errors(t *testing.T) {
	pa := NewPerformanceAnalytics(DefaultConfig())

	_, err := pa.GeneratePerformanceForecast(nil, types.FieldExecutionTime, 3)
	assert.ErrorIs(t, err, dasherrors.ErrInsufficientData)

	_, err = pa.GeneratePerformanceForecast(series([]float64{1}, time.Minute), types.FieldExecutionTime, 3)
	assert.ErrorIs(t, err, dasherrors.ErrInsufficientData)

	_, err = pa.GeneratePerformanceForecast(series([]float64{1, 2}, time.Minute), types.FieldExecutionTime, 0)
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeValidationError))
}
