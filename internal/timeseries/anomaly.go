package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gql-dashboard/internal/analytics"
	"gql-dashboard/pkg/types"
)

// AnomalyType is the subtype of a detected anomaly
type AnomalyType string

const (
	AnomalySpike      AnomalyType = "spike"
	AnomalyDip        AnomalyType = "dip"
	AnomalyStepChange AnomalyType = "step_change"
)

// Detector names
const (
	DetectorZScore    = "zscore"
	DetectorIQR       = "iqr"
	DetectorIsolation = "isolation"
	DetectorChange    = "change_point"
)

// madScale makes the median absolute deviation consistent with σ for
// normal data
const madScale = 1.4826

// TimeSeriesAnomaly is one anomalous point or change point. For spikes and
// dips Magnitude is value minus the series median; for step changes it is
// the shift in mean and Index is the first point of the new level.
type TimeSeriesAnomaly struct {
	Index      int            `json:"index"`
	MetricID   string         `json:"metricId"`
	Timestamp  time.Time      `json:"timestamp"`
	Value      float64        `json:"value"`
	Type       AnomalyType    `json:"type"`
	Detectors  []string       `json:"detectors"`
	Score      float64        `json:"score"`
	ZScore     float64        `json:"zScore"`
	Magnitude  float64        `json:"magnitude"`
	EffectSize float64        `json:"effectSize,omitempty"`
	Severity   types.Severity `json:"severity"`
}

// DetectAnomalies runs three detectors over the execution-time series and
// flags points at least two of them agree on:
//   - z-score: |z| above the outlier threshold
//   - IQR: outside [Q1 - 1.5·IQR, Q3 + 1.5·IQR]
//   - isolation: gap to the nearest other value above 3 scaled MADs
//
// A step change is reported at the split maximizing Cohen's d when it
// reaches the step threshold with MinSegment points on each side.
func (a *Analytics) DetectAnomalies(series []types.MetricRecord) []TimeSeriesAnomaly {
	valid := validSorted(series)
	anomalies := []TimeSeriesAnomaly{}
	if len(valid) < 3 {
		return anomalies
	}

	values := executionTimes(valid)
	sorted := analytics.SortedCopy(values)
	mean, std := analytics.Mean(values), analytics.StdDev(values)
	median := analytics.Percentile(sorted, 0.5)
	q1, q3 := analytics.Percentile(sorted, 0.25), analytics.Percentile(sorted, 0.75)
	iqr := q3 - q1
	mad := medianAbsoluteDeviation(values, median)
	isolationLimit := 3 * madScale * mad

	for i, v := range values {
		var detectors []string
		z := 0.0
		if std > 0 {
			z = (v - mean) / std
			if math.Abs(z) > a.config.OutlierZ {
				detectors = append(detectors, DetectorZScore)
			}
		}
		if v < q1-1.5*iqr || v > q3+1.5*iqr {
			detectors = append(detectors, DetectorIQR)
		}
		if mad > 0 && nearestGap(sorted, v) > isolationLimit {
			detectors = append(detectors, DetectorIsolation)
		}
		if len(detectors) < 2 {
			continue
		}

		kind := AnomalySpike
		if v < median {
			kind = AnomalyDip
		}
		anomalies = append(anomalies, TimeSeriesAnomaly{
			Index:     i,
			MetricID:  valid[i].ID,
			Timestamp: valid[i].Timestamp,
			Value:     v,
			Type:      kind,
			Detectors: detectors,
			Score:     float64(len(detectors)) / 3,
			ZScore:    z,
			Magnitude: v - median,
			Severity:  analytics.SeverityForScore(math.Abs(z), a.config.OutlierZ),
		})
	}

	if step := a.detectStepChange(values); step != nil {
		step.MetricID = valid[step.Index].ID
		step.Timestamp = valid[step.Index].Timestamp
		step.Value = values[step.Index]
		anomalies = append(anomalies, *step)
		sort.SliceStable(anomalies, func(i, j int) bool { return anomalies[i].Index < anomalies[j].Index })
	}
	return anomalies
}

func medianAbsoluteDeviation(values []float64, median float64) float64 {
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	return analytics.Median(dev)
}

// nearestGap returns the distance from v to the closest other element of
// the ascending slice
func nearestGap(sorted []float64, v float64) float64 {
	i := sort.SearchFloat64s(sorted, v)
	gap := math.Inf(1)
	if i > 0 {
		gap = v - sorted[i-1]
	}
	if i+1 < len(sorted) {
		gap = math.Min(gap, sorted[i+1]-v)
	}
	return gap
}

// effect size reported when both segments are constant but differ
const maxEffectSize = 1000

func (a *Analytics) detectStepChange(values []float64) *TimeSeriesAnomaly {
	seg := a.config.MinSegment
	n := len(values)
	if n < 10 || n < 2*seg {
		return nil
	}

	bestK, bestD, bestShift := -1, 0.0, 0.0
	for k := seg; k <= n-seg; k++ {
		before, after := values[:k], values[k:]
		m1, m2 := analytics.Mean(before), analytics.Mean(after)
		diff := m2 - m1
		if diff == 0 {
			continue
		}
		pooled := math.Sqrt((analytics.SampleVariance(before)*float64(len(before)-1) +
			analytics.SampleVariance(after)*float64(len(after)-1)) / float64(n-2))
		d := float64(maxEffectSize)
		if pooled > 0 {
			d = math.Min(maxEffectSize, math.Abs(diff)/pooled)
		}
		if d > bestD {
			bestK, bestD, bestShift = k, d, diff
		}
	}
	if bestK < 0 || bestD < a.config.StepChangeThreshold {
		return nil
	}

	kind := types.SeverityLow
	switch {
	case bestD >= 2*a.config.StepChangeThreshold:
		kind = types.SeverityHigh
	case bestD >= 1.5*a.config.StepChangeThreshold:
		kind = types.SeverityMedium
	}
	return &TimeSeriesAnomaly{
		Index:      bestK,
		Type:       AnomalyStepChange,
		Detectors:  []string{DetectorChange},
		Score:      1,
		Magnitude:  bestShift,
		EffectSize: bestD,
		Severity:   kind,
	}
}

// ContextualAnomaly is a point outside the expected range for its hour of day
type ContextualAnomaly struct {
	MetricID     string    `json:"metricId"`
	EndpointID   string    `json:"endpointId"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value"`
	Hour         int       `json:"hour"`
	Median       float64   `json:"median"`
	ExpectedLow  float64   `json:"expectedLow"`
	ExpectedHigh float64   `json:"expectedHigh"`
	Deviation    float64   `json:"deviation"`
	Explanation  string    `json:"explanation"`
}

type hourBand struct {
	median, scale float64
	low, high     float64
}

// DetectContextualAnomalies groups execution times by UTC hour of day and
// flags points outside median ± k·scale for their hour, where scale is the
// larger of 1.4826·MAD and 5% of |median|. Hours with fewer than
// MinContextSamples points are not evaluated.
func (a *Analytics) DetectContextualAnomalies(series []types.MetricRecord) []ContextualAnomaly {
	valid := validSorted(series)
	out := []ContextualAnomaly{}

	byHour := make(map[int][]float64)
	for _, m := range valid {
		h := m.Timestamp.UTC().Hour()
		byHour[h] = append(byHour[h], m.ExecutionTime)
	}

	bands := make(map[int]hourBand, len(byHour))
	for hour, values := range byHour {
		if len(values) < a.config.MinContextSamples {
			continue
		}
		median := analytics.Median(values)
		scale := math.Max(madScale*medianAbsoluteDeviation(values, median), 0.05*math.Abs(median))
		bands[hour] = hourBand{
			median: median,
			scale:  scale,
			low:    math.Max(0, median-a.config.ContextualK*scale),
			high:   median + a.config.ContextualK*scale,
		}
	}

	for _, m := range valid {
		hour := m.Timestamp.UTC().Hour()
		band, ok := bands[hour]
		if !ok {
			continue
		}

		v := m.ExecutionTime
		if v >= band.low && v <= band.high {
			continue
		}

		deviation := 0.0
		if band.scale > 0 {
			deviation = math.Abs(v-band.median) / band.scale
		}
		position := "above"
		if v < band.low {
			position = "below"
		}
		out = append(out, ContextualAnomaly{
			MetricID:     m.ID,
			EndpointID:   m.EndpointID,
			Timestamp:    m.Timestamp,
			Value:        v,
			Hour:         hour,
			Median:       band.median,
			ExpectedLow:  band.low,
			ExpectedHigh: band.high,
			Deviation:    deviation,
			Explanation: fmt.Sprintf("execution time %.1fms is %s the expected range %.1f-%.1fms for %02d:00 UTC",
				v, position, band.low, band.high, hour),
		})
	}
	return out
}
