package timeseries

import (
	"math"
	"time"

	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

const (
	forecastZ = 1.96
	// hourly buckets needed before hour-of-day offsets are applied
	minSeasonalBuckets = 48
)

// HourlyPoint is the mean execution time of one UTC hour
type HourlyPoint struct {
	Hour  time.Time `json:"hour"`
	Mean  float64   `json:"mean"`
	Count int       `json:"count"`
}

// TimeSeriesForecast is an hourly execution-time forecast
type TimeSeriesForecast struct {
	HorizonHours int                       `json:"horizonHours"`
	Trend        analytics.Regression      `json:"trend"`
	Seasonal     bool                      `json:"seasonal"`
	HourOffsets  []float64                 `json:"hourOffsets,omitempty"`
	Points       []analytics.ForecastPoint `json:"points"`
}

// hourlyMeans buckets time-ordered metrics by UTC hour, skipping empty hours
func hourlyMeans(sorted []types.MetricRecord) []HourlyPoint {
	var out []HourlyPoint
	for _, m := range sorted {
		h := m.Timestamp.UTC().Truncate(time.Hour)
		if n := len(out); n > 0 && out[n-1].Hour.Equal(h) {
			p := &out[n-1]
			p.Mean += (m.ExecutionTime - p.Mean) / float64(p.Count+1)
			p.Count++
			continue
		}
		out = append(out, HourlyPoint{Hour: h, Mean: m.ExecutionTime, Count: 1})
	}
	return out
}

// GenerateForecast projects execution time hourly for horizonHours past the
// last observed hour. The model is a least-squares trend over hourly means
// plus an hour-of-day offset (mean residual per hour) once the history
// covers two days of hourly buckets. Bounds are 95% prediction intervals
// and values are clamped at zero.
func (a *Analytics) GenerateForecast(history []types.MetricRecord, horizonHours int) (*TimeSeriesForecast, error) {
	if horizonHours <= 0 {
		return nil, dasherrors.NewValidationError("horizonHours", "must be positive", horizonHours)
	}
	valid := validSorted(history)
	if len(valid) < 2 {
		return nil, dasherrors.NewInsufficientDataError("forecast", 2, len(valid))
	}

	hours := hourlyMeans(valid)
	origin := hours[0].Hour
	xs := make([]float64, len(hours))
	ys := make([]float64, len(hours))
	for i, h := range hours {
		xs[i] = h.Hour.Sub(origin).Hours()
		ys[i] = h.Mean
	}
	// A single hourly bucket falls back to the raw points
	if len(hours) == 1 {
		xs = xs[:0]
		ys = ys[:0]
		for _, m := range valid {
			xs = append(xs, m.Timestamp.Sub(origin).Hours())
			ys = append(ys, m.ExecutionTime)
		}
	}

	reg := analytics.FitLinear(xs, ys)
	forecast := &TimeSeriesForecast{HorizonHours: horizonHours, Trend: reg}

	var offsets [24]float64
	if len(hours) >= minSeasonalBuckets {
		var sums [24]float64
		var counts [24]int
		for i, h := range hours {
			hod := h.Hour.Hour()
			sums[hod] += ys[i] - reg.Predict(xs[i])
			counts[hod]++
		}
		for h := range offsets {
			if counts[h] > 0 {
				offsets[h] = sums[h] / float64(counts[h])
			}
		}
		forecast.Seasonal = true
		forecast.HourOffsets = offsets[:]
	}

	// Residual spread after removing trend and seasonal offsets
	sse := 0.0
	for i := range xs {
		hod := origin.Add(time.Duration(xs[i] * float64(time.Hour))).Hour()
		res := ys[i] - reg.Predict(xs[i]) - offsets[hod]
		sse += res * res
	}
	se := 0.0
	if len(xs) > 2 {
		se = math.Sqrt(sse / float64(len(xs)-2))
	}
	meanX := analytics.Mean(xs)
	sxx := 0.0
	for _, x := range xs {
		sxx += (x - meanX) * (x - meanX)
	}

	last := hours[len(hours)-1].Hour
	forecast.Points = make([]analytics.ForecastPoint, 0, horizonHours)
	for i := 1; i <= horizonHours; i++ {
		ts := last.Add(time.Duration(i) * time.Hour)
		x := ts.Sub(origin).Hours()
		predicted := reg.Predict(x) + offsets[ts.Hour()]

		leverage := 1 + 1/float64(len(xs))
		if sxx > 0 {
			leverage += (x - meanX) * (x - meanX) / sxx
		}
		half := forecastZ * se * math.Sqrt(leverage)

		forecast.Points = append(forecast.Points, analytics.ForecastPoint{
			Timestamp:      ts,
			PredictedValue: math.Max(0, predicted),
			ConfidenceInterval: analytics.ConfidenceInterval{
				Lower:      math.Max(0, predicted-half),
				Upper:      math.Max(0, predicted+half),
				Confidence: 0.95,
			},
		})
	}
	return forecast, nil
}

// ForecastAccuracy scores a forecast against observed values
type ForecastAccuracy struct {
	Count int `json:"count"`
	// MAE is the mean absolute error
	MAE float64 `json:"mae"`
	// MAPE is the mean absolute percentage error over non-zero actuals
	MAPE float64 `json:"mape"`
	// Coverage is the fraction of actuals inside their interval
	Coverage float64 `json:"coverage"`
	// Sharpness is the mean interval width
	Sharpness float64 `json:"sharpness"`
}

// EvaluateForecastAccuracy aligns forecast points and actuals by index
func (a *Analytics) EvaluateForecastAccuracy(forecast []analytics.ForecastPoint, actuals []float64) (*ForecastAccuracy, error) {
	n := min(len(forecast), len(actuals))
	if n == 0 {
		return nil, dasherrors.NewInsufficientDataError("forecast accuracy", 1, 0)
	}

	acc := &ForecastAccuracy{Count: n}
	var absSum, pctSum, width float64
	pctCount, covered := 0, 0
	for i := 0; i < n; i++ {
		p, actual := forecast[i], actuals[i]
		errAbs := math.Abs(actual - p.PredictedValue)
		absSum += errAbs
		if actual != 0 {
			pctSum += errAbs / math.Abs(actual)
			pctCount++
		}
		if actual >= p.ConfidenceInterval.Lower && actual <= p.ConfidenceInterval.Upper {
			covered++
		}
		width += p.ConfidenceInterval.Upper - p.ConfidenceInterval.Lower
	}

	acc.MAE = absSum / float64(n)
	if pctCount > 0 {
		acc.MAPE = pctSum / float64(pctCount) * 100
	}
	acc.Coverage = float64(covered) / float64(n)
	acc.Sharpness = width / float64(n)
	return acc, nil
}
