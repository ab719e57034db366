package timeseries

import (
	"math"
	"sort"
	"time"

	"gql-dashboard/internal/analytics"
	"gql-dashboard/pkg/types"
)

// StreamPoint is one batch point after validation and outlier scoring
type StreamPoint struct {
	Metric   types.MetricRecord `json:"metric"`
	Valid    bool               `json:"valid"`
	Error    string             `json:"error,omitempty"`
	Outlier  bool               `json:"outlier"`
	ZScore   float64            `json:"zScore"`
	Smoothed float64            `json:"smoothed"`
}

// TrendPoint is one smoothed value of the stream trend
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// RealtimeStats summarizes the valid points of a batch
type RealtimeStats struct {
	ThroughputPerMinute float64   `json:"throughputPerMinute"`
	AvgLatency          float64   `json:"avgLatency"`
	P95Latency          float64   `json:"p95Latency"`
	ErrorRate           float64   `json:"errorRate"`
	WindowStart         time.Time `json:"windowStart"`
	WindowEnd           time.Time `json:"windowEnd"`
}

// StreamResult is the outcome of processing one streaming batch
type StreamResult struct {
	Points       []StreamPoint `json:"points"`
	ValidCount   int           `json:"validCount"`
	InvalidCount int           `json:"invalidCount"`
	Completeness float64       `json:"completeness"`
	OutlierCount int           `json:"outlierCount"`
	Trend        []TrendPoint  `json:"trend"`
	Stats        RealtimeStats `json:"stats"`
}

// ProcessStreamingData validates and scores a batch without touching the
// buffer. Points keep their input order; the trend is ordered by time.
func (a *Analytics) ProcessStreamingData(batch []types.MetricRecord) StreamResult {
	result := StreamResult{Points: make([]StreamPoint, len(batch)), Trend: []TrendPoint{}}
	if len(batch) == 0 {
		return result
	}

	validIdx := make([]int, 0, len(batch))
	for i, m := range batch {
		result.Points[i] = StreamPoint{Metric: m}
		if err := m.Validate(); err != nil {
			result.Points[i].Error = err.Error()
			result.InvalidCount++
			continue
		}
		result.Points[i].Valid = true
		validIdx = append(validIdx, i)
	}
	result.ValidCount = len(validIdx)
	result.Completeness = float64(result.ValidCount) / float64(len(batch))

	if result.InvalidCount > 0 {
		a.logger.Debug("Dropped invalid stream points", "invalid", result.InvalidCount, "total", len(batch))
	}
	if len(validIdx) == 0 {
		return result
	}

	values := make([]float64, len(validIdx))
	for j, i := range validIdx {
		values[j] = batch[i].ExecutionTime
	}
	mean, std := analytics.Mean(values), analytics.StdDev(values)
	for j, i := range validIdx {
		if std == 0 {
			continue
		}
		z := (values[j] - mean) / std
		result.Points[i].ZScore = z
		if math.Abs(z) > a.config.OutlierZ {
			result.Points[i].Outlier = true
			result.OutlierCount++
		}
	}

	// Trend over time order
	order := append([]int(nil), validIdx...)
	sort.SliceStable(order, func(x, y int) bool {
		return batch[order[x]].Timestamp.Before(batch[order[y]].Timestamp)
	})
	window := a.config.SmoothingWindow
	sum := 0.0
	for k, i := range order {
		sum += batch[i].ExecutionTime
		if k >= window {
			sum -= batch[order[k-window]].ExecutionTime
		}
		n := min(k+1, window)
		smoothed := sum / float64(n)
		result.Points[i].Smoothed = smoothed
		result.Trend = append(result.Trend, TrendPoint{Timestamp: batch[i].Timestamp, Value: smoothed})
	}

	first, last := batch[order[0]].Timestamp, batch[order[len(order)-1]].Timestamp
	minutes := math.Max(last.Sub(first).Minutes(), 1)
	errors := 0
	for _, i := range validIdx {
		if batch[i].Failed() {
			errors++
		}
	}
	result.Stats = RealtimeStats{
		ThroughputPerMinute: float64(len(validIdx)) / minutes,
		AvgLatency:          mean,
		P95Latency:          analytics.Percentile(analytics.SortedCopy(values), 0.95),
		ErrorRate:           float64(errors) / float64(len(validIdx)),
		WindowStart:         first,
		WindowEnd:           last,
	}
	return result
}

// Resolution is a rollup granularity
type Resolution string

const (
	ResolutionMinute     Resolution = "minute"
	ResolutionFiveMinute Resolution = "five_minute"
	ResolutionHour       Resolution = "hour"
	ResolutionDay        Resolution = "day"
)

// Duration returns the bucket width
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionMinute:
		return time.Minute
	case ResolutionFiveMinute:
		return 5 * time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDay:
		return 24 * time.Hour
	}
	return 0
}

// Rollup aggregates the metrics of one time bucket across endpoints
type Rollup struct {
	Start             time.Time  `json:"start"`
	Resolution        Resolution `json:"resolution"`
	Count             int        `json:"count"`
	ErrorCount        int        `json:"errorCount"`
	MeanExecutionTime float64    `json:"meanExecutionTime"`
	MinExecutionTime  float64    `json:"minExecutionTime"`
	MaxExecutionTime  float64    `json:"maxExecutionTime"`
	P95ExecutionTime  float64    `json:"p95ExecutionTime"`
	MeanResponseSize  float64    `json:"meanResponseSize"`
}

// MultiResolution holds parallel views of the same metrics for chart zoom
// levels. Minute is the raw, time-ordered points.
type MultiResolution struct {
	Minute     []types.MetricRecord `json:"minute"`
	FiveMinute []Rollup             `json:"fiveMinute"`
	Hour       []Rollup             `json:"hour"`
	Day        []Rollup             `json:"day"`
}

// GenerateMultiResolutionData rolls the valid metrics up at each resolution
func (a *Analytics) GenerateMultiResolutionData(metrics []types.MetricRecord) MultiResolution {
	sorted := validSorted(metrics)
	return MultiResolution{
		Minute:     sorted,
		FiveMinute: rollup(sorted, ResolutionFiveMinute),
		Hour:       rollup(sorted, ResolutionHour),
		Day:        rollup(sorted, ResolutionDay),
	}
}

// rollup expects time-ordered input
func rollup(sorted []types.MetricRecord, res Resolution) []Rollup {
	out := []Rollup{}
	width := res.Duration()

	var bucket []types.MetricRecord
	var start time.Time
	flush := func() {
		if len(bucket) == 0 {
			return
		}
		out = append(out, summarizeBucket(bucket, start, res))
		bucket = bucket[:0]
	}

	for _, m := range sorted {
		s := m.Timestamp.UTC().Truncate(width)
		if len(bucket) > 0 && !s.Equal(start) {
			flush()
		}
		start = s
		bucket = append(bucket, m)
	}
	flush()
	return out
}

func summarizeBucket(bucket []types.MetricRecord, start time.Time, res Resolution) Rollup {
	values := executionTimes(bucket)
	stats := analytics.CalculateSeriesStatistics(values)

	r := Rollup{
		Start:             start,
		Resolution:        res,
		Count:             len(bucket),
		MeanExecutionTime: stats.Mean,
		MinExecutionTime:  stats.Min,
		MaxExecutionTime:  stats.Max,
		P95ExecutionTime:  stats.P95,
	}
	size := 0.0
	for _, m := range bucket {
		size += float64(m.ResponseSize)
		if m.Failed() {
			r.ErrorCount++
		}
	}
	r.MeanResponseSize = size / float64(len(bucket))
	return r
}

// FilterByTimeRange returns the metrics with start <= timestamp <= end,
// stably sorted by timestamp
func (a *Analytics) FilterByTimeRange(metrics []types.MetricRecord, start, end time.Time) []types.MetricRecord {
	out := []types.MetricRecord{}
	for _, m := range metrics {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// SelectionStatistics summarizes an arbitrary sub-selection of metrics
type SelectionStatistics struct {
	Count            int     `json:"count"`
	Mean             float64 `json:"mean"`
	Median           float64 `json:"median"`
	StdDev           float64 `json:"stdDev"`
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	P95              float64 `json:"p95"`
	P99              float64 `json:"p99"`
	ErrorRate        float64 `json:"errorRate"`
	MeanResponseSize float64 `json:"meanResponseSize"`
}

// CalculateSelectionStatistics summarizes execution time over the valid
// metrics. An empty selection yields zero statistics.
func (a *Analytics) CalculateSelectionStatistics(metrics []types.MetricRecord) SelectionStatistics {
	return selectionStatistics(validSorted(metrics))
}

func selectionStatistics(valid []types.MetricRecord) SelectionStatistics {
	if len(valid) == 0 {
		return SelectionStatistics{}
	}

	stats := analytics.CalculateSeriesStatistics(executionTimes(valid))
	errors := 0
	size := 0.0
	for _, m := range valid {
		if m.Failed() {
			errors++
		}
		size += float64(m.ResponseSize)
	}
	return SelectionStatistics{
		Count:            stats.Count,
		Mean:             stats.Mean,
		Median:           stats.Median,
		StdDev:           stats.StdDev,
		Min:              stats.Min,
		Max:              stats.Max,
		P95:              stats.P95,
		P99:              stats.P99,
		ErrorRate:        float64(errors) / float64(len(valid)),
		MeanResponseSize: size / float64(len(valid)),
	}
}
