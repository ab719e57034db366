package timeseries

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/pkg/types"
)

var baseTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) // a Monday

func point(endpoint string, exec float64, ts time.Time) types.MetricRecord {
	return types.MetricRecord{
		ID:            fmt.Sprintf("%s-%d", endpoint, ts.UnixNano()),
		EndpointID:    endpoint,
		Query:         "query Users { users { id } }",
		ExecutionTime: exec,
		ResponseSize:  1000,
		Timestamp:     ts,
		Success:       true,
	}
}

func seriesOf(values []float64, step time.Duration) []types.MetricRecord {
	out := make([]types.MetricRecord, len(values))
	for i, v := range values {
		out[i] = point("users", v, baseTime.Add(time.Duration(i)*step))
	}
	return out
}

func stableValues(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i%11-5)
	}
	return values
}

func newAnalytics(t *testing.T, mutate func(*Config)) *Analytics {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, nil, nil)
}

func TestAddDataPoint_EvictsOldest(t *testing.T) {
	a := newAnalytics(t, func(c *Config) { c.BufferSize = 3 })

	for i, m := range seriesOf([]float64{1, 2, 3, 4, 5}, time.Second) {
		require.NoError(t, a.AddDataPoint(m), "point %d", i)
	}

	points := a.DataPoints()
	require.Len(t, points, 3)
	assert.Equal(t, []float64{3, 4, 5}, executionTimes(points))
	assert.Equal(t, 3, a.Len())

	a.Clear()
	assert.Empty(t, a.DataPoints())
}

func TestAddDataPoint_RejectsInvalid(t *testing.T) {
	a := newAnalytics(t, nil)

	bad := point("users", math.NaN(), baseTime)
	assert.Error(t, a.AddDataPoint(bad))

	bad = point("users", -1, baseTime)
	assert.Error(t, a.AddDataPoint(bad))
	assert.Equal(t, 0, a.Len())
}

func TestProcessStreamingData_Completeness(t *testing.T) {
	a := newAnalytics(t, nil)

	batch := seriesOf([]float64{100, 110, 120, 130}, time.Second)
	batch = append(batch, point("users", math.NaN(), baseTime.Add(5*time.Second)))

	res := a.ProcessStreamingData(batch)
	assert.Equal(t, 4, res.ValidCount)
	assert.Equal(t, 1, res.InvalidCount)
	assert.InDelta(t, 0.8, res.Completeness, 1e-9)
	assert.False(t, res.Points[4].Valid)
	assert.NotEmpty(t, res.Points[4].Error)
	assert.Len(t, res.Trend, 4)
	assert.Equal(t, 0, a.Len(), "processing must not buffer")
}

func TestProcessStreamingData_Empty(t *testing.T) {
	a := newAnalytics(t, nil)

	res := a.ProcessStreamingData(nil)
	assert.Empty(t, res.Points)
	assert.Empty(t, res.Trend)
	assert.Zero(t, res.Completeness)
}

func TestProcessStreamingData_Outliers(t *testing.T) {
	a := newAnalytics(t, nil)

	values := stableValues(50)
	values[25] = 300
	res := a.ProcessStreamingData(seriesOf(values, time.Minute))

	assert.Equal(t, 1, res.OutlierCount)
	assert.True(t, res.Points[25].Outlier)
	assert.Greater(t, res.Points[25].ZScore, 3.0)
}

func TestProcessStreamingData_TrendAndStats(t *testing.T) {
	a := newAnalytics(t, func(c *Config) { c.SmoothingWindow = 2 })

	batch := seriesOf([]float64{10, 20, 30}, 30*time.Second)
	batch[1].Success = false
	res := a.ProcessStreamingData(batch)

	require.Len(t, res.Trend, 3)
	assert.Equal(t, 10.0, res.Trend[0].Value)
	assert.Equal(t, 15.0, res.Trend[1].Value)
	assert.Equal(t, 25.0, res.Trend[2].Value)

	// one minute span
	assert.InDelta(t, 3.0, res.Stats.ThroughputPerMinute, 1e-9)
	assert.InDelta(t, 20.0, res.Stats.AvgLatency, 1e-9)
	assert.InDelta(t, 1.0/3, res.Stats.ErrorRate, 1e-9)
	assert.Equal(t, baseTime, res.Stats.WindowStart)
}

func TestGenerateMultiResolutionData(t *testing.T) {
	a := newAnalytics(t, nil)

	metrics := []types.MetricRecord{
		point("users", 40, baseTime.Add(61*time.Minute)),
		point("users", 10, baseTime),
		point("users", 20, baseTime.Add(2*time.Minute)),
		point("users", 30, baseTime.Add(7*time.Minute)),
	}
	res := a.GenerateMultiResolutionData(metrics)

	require.Len(t, res.Minute, 4)
	assert.Equal(t, 10.0, res.Minute[0].ExecutionTime)

	require.Len(t, res.FiveMinute, 3)
	assert.Equal(t, 2, res.FiveMinute[0].Count)
	assert.Equal(t, 15.0, res.FiveMinute[0].MeanExecutionTime)
	assert.Equal(t, baseTime.Add(5*time.Minute), res.FiveMinute[1].Start)

	require.Len(t, res.Hour, 2)
	assert.Equal(t, 3, res.Hour[0].Count)
	assert.Equal(t, 30.0, res.Hour[0].MaxExecutionTime)

	require.Len(t, res.Day, 1)
	assert.Equal(t, 4, res.Day[0].Count)
	assert.Equal(t, ResolutionDay, res.Day[0].Resolution)
}

func TestFilterByTimeRange_InclusiveAndStable(t *testing.T) {
	a := newAnalytics(t, nil)

	first := point("a", 1, baseTime.Add(time.Minute))
	second := point("b", 2, baseTime.Add(time.Minute))
	metrics := []types.MetricRecord{
		point("c", 3, baseTime.Add(2*time.Minute)),
		first,
		point("d", 4, baseTime.Add(3*time.Minute)),
		second,
		point("e", 5, baseTime),
	}

	out := a.FilterByTimeRange(metrics, baseTime.Add(time.Minute), baseTime.Add(2*time.Minute))
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].EndpointID)
	assert.Equal(t, "b", out[1].EndpointID)
	assert.Equal(t, "c", out[2].EndpointID)
}

func TestCalculateSelectionStatistics(t *testing.T) {
	a := newAnalytics(t, nil)

	metrics := seriesOf([]float64{4, 1, 3, 2}, time.Second)
	metrics[0].Errors = []string{"boom"}
	stats := a.CalculateSelectionStatistics(metrics)

	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2.5, stats.Mean)
	assert.Equal(t, 2.5, stats.Median)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.Equal(t, 0.25, stats.ErrorRate)
	assert.Equal(t, 1000.0, stats.MeanResponseSize)

	assert.Equal(t, SelectionStatistics{}, a.CalculateSelectionStatistics(nil))
}
