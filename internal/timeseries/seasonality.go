package timeseries

import (
	"time"

	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

const (
	dailyPeriod  = 24
	weeklyPeriod = 24 * 7
)

// PatternType names a seasonal cycle
type PatternType string

const (
	PatternDaily  PatternType = "daily"
	PatternWeekly PatternType = "weekly"
)

// SeasonalPattern reports one evaluated cycle
type SeasonalPattern struct {
	Type      PatternType   `json:"type"`
	Period    time.Duration `json:"period"`
	Strength  float64       `json:"strength"`
	Detected  bool          `json:"detected"`
	Amplitude float64       `json:"amplitude"`
	// PeakIndex is the hour of day (daily) or hour of week from Monday
	// 00:00 UTC (weekly) with the highest seasonal index
	PeakIndex int       `json:"peakIndex"`
	Index     []float64 `json:"index"`
}

// Decomposition splits an hourly series into additive components
type Decomposition struct {
	Timestamps []time.Time `json:"timestamps"`
	Observed   []float64   `json:"observed"`
	Trend      []float64   `json:"trend"`
	Seasonal   []float64   `json:"seasonal"`
	Residual   []float64   `json:"residual"`
}

// SeasonalityResult is the outcome of DetectSeasonality
type SeasonalityResult struct {
	Decomposition Decomposition     `json:"decomposition"`
	Patterns      []SeasonalPattern `json:"patterns"`
}

// DetectSeasonality builds a gap-filled hourly execution-time series and
// decomposes it classically: centered moving-average trend, mean
// detrended value per phase as seasonal index, remainder as residual.
// Strength is max(0, 1 - Var(residual)/Var(seasonal+residual)). The daily
// cycle needs 48 hourly buckets; the weekly cycle is evaluated from 14 days.
func (a *Analytics) DetectSeasonality(series []types.MetricRecord) (*SeasonalityResult, error) {
	valid := validSorted(series)
	hourly := filledHourly(hourlyMeans(valid))
	if len(hourly) < 2*dailyPeriod {
		return nil, dasherrors.NewInsufficientDataError("seasonality", 2*dailyPeriod, len(hourly))
	}

	ts := make([]time.Time, len(hourly))
	ys := make([]float64, len(hourly))
	for i, h := range hourly {
		ts[i] = h.Hour
		ys[i] = h.Mean
	}

	daily, dec := a.decompose(ts, ys, dailyPeriod, func(t time.Time) int { return t.Hour() })
	daily.Type = PatternDaily
	daily.Period = 24 * time.Hour

	result := &SeasonalityResult{Decomposition: dec, Patterns: []SeasonalPattern{daily}}

	if len(hourly) >= 2*weeklyPeriod {
		weekly, _ := a.decompose(ts, ys, weeklyPeriod, hourOfWeek)
		weekly.Type = PatternWeekly
		weekly.Period = 7 * 24 * time.Hour
		result.Patterns = append(result.Patterns, weekly)
	}
	return result, nil
}

func hourOfWeek(t time.Time) int {
	return ((int(t.Weekday())+6)%7)*24 + t.Hour()
}

// filledHourly inserts missing hours, interpolating linearly between the
// neighbouring observed hours
func filledHourly(points []HourlyPoint) []HourlyPoint {
	if len(points) < 2 {
		return points
	}
	out := []HourlyPoint{points[0]}
	for _, p := range points[1:] {
		prev := out[len(out)-1]
		gap := int(p.Hour.Sub(prev.Hour) / time.Hour)
		for k := 1; k < gap; k++ {
			frac := float64(k) / float64(gap)
			out = append(out, HourlyPoint{
				Hour: prev.Hour.Add(time.Duration(k) * time.Hour),
				Mean: prev.Mean + (p.Mean-prev.Mean)*frac,
			})
		}
		out = append(out, p)
	}
	return out
}

func (a *Analytics) decompose(ts []time.Time, ys []float64, period int, phase func(time.Time) int) (SeasonalPattern, Decomposition) {
	n := len(ys)
	trend := centeredMovingAverage(ys, period)

	sums := make([]float64, period)
	counts := make([]int, period)
	for i := range ys {
		p := phase(ts[i])
		sums[p] += ys[i] - trend[i]
		counts[p]++
	}
	index := make([]float64, period)
	for p := range index {
		if counts[p] > 0 {
			index[p] = sums[p] / float64(counts[p])
		}
	}
	center := analytics.Mean(index)
	for p := range index {
		index[p] -= center
	}

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	combined := make([]float64, n)
	for i := range ys {
		seasonal[i] = index[phase(ts[i])]
		residual[i] = ys[i] - trend[i] - seasonal[i]
		combined[i] = seasonal[i] + residual[i]
	}

	strength := 0.0
	if vc := analytics.StdDev(combined); vc > 0 {
		vr := analytics.StdDev(residual)
		strength = max(0, 1-(vr*vr)/(vc*vc))
	}

	peak := 0
	minIdx, maxIdx := index[0], index[0]
	for p, v := range index {
		if v > index[peak] {
			peak = p
		}
		minIdx = min(minIdx, v)
		maxIdx = max(maxIdx, v)
	}

	pattern := SeasonalPattern{
		Strength:  strength,
		Detected:  strength >= a.config.SeasonalityThreshold,
		Amplitude: (maxIdx - minIdx) / 2,
		PeakIndex: peak,
		Index:     index,
	}
	return pattern, Decomposition{
		Timestamps: ts,
		Observed:   ys,
		Trend:      trend,
		Seasonal:   seasonal,
		Residual:   residual,
	}
}

// centeredMovingAverage uses a 2×period average for even periods. The ends
// where the window does not fit repeat the nearest computed value.
func centeredMovingAverage(ys []float64, period int) []float64 {
	n := len(ys)
	out := make([]float64, n)
	half := period / 2
	if n < period+1 {
		m := analytics.Mean(ys)
		for i := range out {
			out[i] = m
		}
		return out
	}

	for i := half; i < n-half; i++ {
		sum := 0.0
		if period%2 == 0 {
			sum = 0.5*ys[i-half] + 0.5*ys[i+half]
			for j := i - half + 1; j < i+half; j++ {
				sum += ys[j]
			}
		} else {
			for j := i - half; j <= i+half; j++ {
				sum += ys[j]
			}
		}
		out[i] = sum / float64(period)
	}
	for i := 0; i < half; i++ {
		out[i] = out[half]
	}
	for i := n - half; i < n; i++ {
		out[i] = out[n-half-1]
	}
	return out
}
