package analytics

import (
	"math"
	"sort"
	"time"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

// Window is an aggregation granularity
type Window string

const (
	WindowHour  Window = "hour"
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// Valid returns true if the window is known
func (w Window) Valid() bool {
	switch w {
	case WindowHour, WindowDay, WindowWeek, WindowMonth:
		return true
	}
	return false
}

// Truncate returns the UTC start of the bucket containing t. Weeks start on
// Monday.
func (w Window) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case WindowHour:
		return t.Truncate(time.Hour)
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case WindowWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case WindowMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// AggregatedWindow summarizes one endpoint's metrics in one bucket
type AggregatedWindow struct {
	Start             time.Time `json:"start"`
	Window            Window    `json:"window"`
	EndpointID        string    `json:"endpointId"`
	Count             int       `json:"count"`
	ErrorCount        int       `json:"errorCount"`
	MeanExecutionTime float64   `json:"meanExecutionTime"`
	MeanResponseSize  float64   `json:"meanResponseSize"`
}

// TrendDirection classifies a fitted trend
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
)

// TrendResult is a least-squares trend over one metric field. Slope is in
// field units per second.
type TrendResult struct {
	Field         types.MetricField `json:"field"`
	Direction     TrendDirection    `json:"direction"`
	Slope         float64           `json:"slope"`
	Confidence    float64           `json:"confidence"`
	PercentChange float64           `json:"percentChange"`
	StartValue    float64           `json:"startValue"`
	EndValue      float64           `json:"endValue"`
	DataPoints    int               `json:"dataPoints"`
}

// Percentiles holds the standard latency percentiles
type Percentiles struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Anomaly is one point whose z-score exceeded the threshold
type Anomaly struct {
	MetricID       string         `json:"metricId"`
	EndpointID     string         `json:"endpointId"`
	Timestamp      time.Time      `json:"timestamp"`
	Value          float64        `json:"value"`
	Expected       float64        `json:"expected"`
	ZScore         float64        `json:"zScore"`
	DeviationScore float64        `json:"deviationScore"`
	Severity       types.Severity `json:"severity"`
}

// ConfidenceInterval bounds a forecast value
type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// ForecastPoint is one projected value
type ForecastPoint struct {
	Timestamp          time.Time          `json:"timestamp"`
	PredictedValue     float64            `json:"predictedValue"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval"`
}

// Forecast is a linear projection of a metric field
type Forecast struct {
	Field    types.MetricField `json:"field"`
	Interval time.Duration     `json:"interval"`
	Trend    TrendResult       `json:"trend"`
	Points   []ForecastPoint   `json:"points"`
}

// Config tunes PerformanceAnalytics
type Config struct {
	// AnomalyThreshold is the |z| above which a point is anomalous
	AnomalyThreshold float64
	// StableBand is the absolute percent change below which a trend is stable
	StableBand float64
	// IntervalZ is the normal quantile used for forecast bounds
	IntervalZ float64
}

// DefaultConfig returns the default analytics configuration
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold: 3.0,
		StableBand:       5.0,
		IntervalZ:        1.96,
	}
}

// PerformanceAnalytics computes aggregates, trends and forecasts over static
// metric sets. It holds no state besides its configuration.
type PerformanceAnalytics struct {
	config Config
}

// NewPerformanceAnalytics creates an analyzer; zero config fields take defaults
func NewPerformanceAnalytics(config Config) *PerformanceAnalytics {
	def := DefaultConfig()
	if config.AnomalyThreshold <= 0 {
		config.AnomalyThreshold = def.AnomalyThreshold
	}
	if config.StableBand <= 0 {
		config.StableBand = def.StableBand
	}
	if config.IntervalZ <= 0 {
		config.IntervalZ = def.IntervalZ
	}
	return &PerformanceAnalytics{config: config}
}

// Config returns the effective configuration
func (pa *PerformanceAnalytics) Config() Config {
	return pa.config
}

type point struct {
	metric *types.MetricRecord
	value  float64
}

// fieldSeries returns the valid metrics' values for field, ordered by
// timestamp with ties kept in input order
func fieldSeries(metrics []types.MetricRecord, field types.MetricField) []point {
	points := make([]point, 0, len(metrics))
	for i := range metrics {
		m := &metrics[i]
		if m.Validate() != nil {
			continue
		}
		v, ok := m.Value(field)
		if !ok {
			continue
		}
		points = append(points, point{metric: m, value: v})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].metric.Timestamp.Before(points[j].metric.Timestamp)
	})
	return points
}

func checkField(field types.MetricField) error {
	if !field.Valid() {
		return dasherrors.NewValidationError("field", "unsupported metric field", string(field))
	}
	return nil
}

// AggregateByTimeWindow buckets valid metrics by endpoint and UTC window
func (pa *PerformanceAnalytics) AggregateByTimeWindow(metrics []types.MetricRecord, window Window) ([]AggregatedWindow, error) {
	if !window.Valid() {
		return nil, dasherrors.NewValidationError("window", "must be hour, day, week or month", string(window))
	}

	type key struct {
		start    time.Time
		endpoint string
	}
	type acc struct {
		count, errors int
		execSum       float64
		sizeSum       float64
	}

	buckets := make(map[key]*acc)
	for i := range metrics {
		m := &metrics[i]
		if m.Validate() != nil {
			continue
		}
		k := key{start: window.Truncate(m.Timestamp), endpoint: m.EndpointID}
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
		}
		a.count++
		a.execSum += m.ExecutionTime
		a.sizeSum += float64(m.ResponseSize)
		if m.Failed() {
			a.errors++
		}
	}

	result := make([]AggregatedWindow, 0, len(buckets))
	for k, a := range buckets {
		result = append(result, AggregatedWindow{
			Start:             k.start,
			Window:            window,
			EndpointID:        k.endpoint,
			Count:             a.count,
			ErrorCount:        a.errors,
			MeanExecutionTime: a.execSum / float64(a.count),
			MeanResponseSize:  a.sizeSum / float64(a.count),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Start.Equal(result[j].Start) {
			return result[i].Start.Before(result[j].Start)
		}
		return result[i].EndpointID < result[j].EndpointID
	})
	return result, nil
}

// CalculatePerformanceTrend fits a line through the field values over time.
// A rising value is degrading for every tracked field.
func (pa *PerformanceAnalytics) CalculatePerformanceTrend(metrics []types.MetricRecord, field types.MetricField) (*TrendResult, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	points := fieldSeries(metrics, field)
	if len(points) < 2 {
		return nil, dasherrors.NewInsufficientDataError("trend", 2, len(points))
	}
	trend, _ := pa.fitTrend(points, field)
	return &trend, nil
}

func (pa *PerformanceAnalytics) fitTrend(points []point, field types.MetricField) (TrendResult, Regression) {
	origin := points[0].metric.Timestamp
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.metric.Timestamp.Sub(origin).Seconds()
		ys[i] = p.value
	}

	reg := FitLinear(xs, ys)
	start := reg.Predict(xs[0])
	end := reg.Predict(xs[len(xs)-1])

	trend := TrendResult{
		Field:         field,
		Slope:         reg.Slope,
		Confidence:    reg.R2,
		PercentChange: percentChange(start, end),
		StartValue:    start,
		EndValue:      end,
		DataPoints:    len(points),
	}

	switch {
	case math.Abs(trend.PercentChange) < pa.config.StableBand:
		trend.Direction = TrendStable
	case trend.PercentChange > 0:
		trend.Direction = TrendDegrading
	default:
		trend.Direction = TrendImproving
	}
	return trend, reg
}

// percentChange returns the change from a to b in percent of |a|. A change
// away from zero counts as ±100%.
func percentChange(a, b float64) float64 {
	if a == 0 {
		switch {
		case b > 0:
			return 100
		case b < 0:
			return -100
		}
		return 0
	}
	return (b - a) / math.Abs(a) * 100
}

// CalculatePercentiles returns P50/P90/P95/P99 of the field values
func (pa *PerformanceAnalytics) CalculatePercentiles(metrics []types.MetricRecord, field types.MetricField) (*Percentiles, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	points := fieldSeries(metrics, field)
	if len(points) == 0 {
		return nil, dasherrors.NewInsufficientDataError("percentiles", 1, 0)
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
	}
	sorted := SortedCopy(values)

	return &Percentiles{
		Count: len(sorted),
		P50:   Percentile(sorted, 0.50),
		P90:   Percentile(sorted, 0.90),
		P95:   Percentile(sorted, 0.95),
		P99:   Percentile(sorted, 0.99),
	}, nil
}

// DetectAnomalies flags points whose population z-score exceeds the
// configured threshold. A constant series has no anomalies.
func (pa *PerformanceAnalytics) DetectAnomalies(metrics []types.MetricRecord, field types.MetricField) ([]Anomaly, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	points := fieldSeries(metrics, field)
	anomalies := []Anomaly{}
	if len(points) < 2 {
		return anomalies, nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
	}
	mean, std := Mean(values), StdDev(values)
	if std == 0 {
		return anomalies, nil
	}

	for _, p := range points {
		z := (p.value - mean) / std
		if math.Abs(z) <= pa.config.AnomalyThreshold {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			MetricID:       p.metric.ID,
			EndpointID:     p.metric.EndpointID,
			Timestamp:      p.metric.Timestamp,
			Value:          p.value,
			Expected:       mean,
			ZScore:         z,
			DeviationScore: math.Abs(z),
			Severity:       SeverityForScore(math.Abs(z), pa.config.AnomalyThreshold),
		})
	}
	return anomalies, nil
}

// SeverityForScore tiers a deviation score relative to its threshold:
// 2x critical, 1.5x high, 1.2x medium, otherwise low
func SeverityForScore(score, threshold float64) types.Severity {
	switch {
	case score >= 2*threshold:
		return types.SeverityCritical
	case score >= 1.5*threshold:
		return types.SeverityHigh
	case score >= 1.2*threshold:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// GeneratePerformanceForecast projects horizon points past the last sample
// along the fitted trend, spaced by the mean sampling interval, with a 95%
// prediction interval. Values are clamped at zero.
func (pa *PerformanceAnalytics) GeneratePerformanceForecast(metrics []types.MetricRecord, field types.MetricField, horizon int) (*Forecast, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return nil, dasherrors.NewValidationError("horizon", "must be positive", horizon)
	}
	points := fieldSeries(metrics, field)
	if len(points) < 2 {
		return nil, dasherrors.NewInsufficientDataError("forecast", 2, len(points))
	}

	trend, reg := pa.fitTrend(points, field)

	first := points[0].metric.Timestamp
	last := points[len(points)-1].metric.Timestamp
	step := last.Sub(first) / time.Duration(len(points)-1)
	if step <= 0 {
		step = time.Minute
	}

	forecast := &Forecast{
		Field:    field,
		Interval: step,
		Trend:    trend,
		Points:   make([]ForecastPoint, 0, horizon),
	}
	for i := 1; i <= horizon; i++ {
		ts := last.Add(time.Duration(i) * step)
		x := ts.Sub(first).Seconds()
		predicted := math.Max(0, reg.Predict(x))
		half := reg.PredictionHalfWidth(x, pa.config.IntervalZ)
		forecast.Points = append(forecast.Points, ForecastPoint{
			Timestamp:      ts,
			PredictedValue: predicted,
			ConfidenceInterval: ConfidenceInterval{
				Lower:      math.Max(0, predicted-half),
				Upper:      predicted + half,
				Confidence: 0.95,
			},
		})
	}
	return forecast, nil
}
