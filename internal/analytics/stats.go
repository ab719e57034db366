// Package analytics implements the stateless performance analytics used by
// the dashboard: window aggregation, percentiles, trends, z-score anomaly
// detection and linear forecasting over MetricRecord sets.
package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SeriesStatistics summarizes a set of values
type SeriesStatistics struct {
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	P50      float64 `json:"p50"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
}

// CalculateSeriesStatistics computes population statistics over values.
// The input slice is not modified. Empty input yields the zero value.
func CalculateSeriesStatistics(values []float64) SeriesStatistics {
	if len(values) == 0 {
		return SeriesStatistics{}
	}

	sorted := SortedCopy(values)
	stats := SeriesStatistics{
		Count: len(sorted),
		Sum:   floats.Sum(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}
	stats.Mean = stats.Sum / float64(len(sorted))
	stats.Median = Percentile(sorted, 0.5)

	stats.P50 = stats.Median
	stats.P90 = Percentile(sorted, 0.9)
	stats.P95 = Percentile(sorted, 0.95)
	stats.P99 = Percentile(sorted, 0.99)

	stats.Variance = stat.PopVariance(sorted, nil)
	stats.StdDev = math.Sqrt(stats.Variance)

	return stats
}

// SortedCopy returns an ascending copy of values
func SortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}

// Percentile interpolates linearly at index p*(n-1) of an ascending slice.
// stat.LinInterp places quantile p at rank p*n, so p is rescaled to the
// rank (n-1)*p+1 first.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Min(1, math.Max(0, p))
	return stat.Quantile(math.Min(1, (float64(n-1)*p+1)/float64(n)), stat.LinInterp, sorted, nil)
}

// Mean returns the arithmetic mean, 0 for empty input
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev returns the population standard deviation
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(values, nil))
}

// SampleVariance returns the n-1 variance, 0 when fewer than two values
func SampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// Median returns the median without modifying values
func Median(values []float64) float64 {
	return Percentile(SortedCopy(values), 0.5)
}

// Regression is an ordinary least-squares fit of y on x
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	N         int     `json:"n"`

	meanX float64
	sxx   float64
	// residual standard error, sqrt(SSE/(n-2))
	se float64
}

// FitLinear fits y = intercept + slope*x. With constant x the slope is 0 and
// the intercept is the mean of y. R2 is 1 when y has no variance.
func FitLinear(xs, ys []float64) Regression {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return Regression{}
	}

	meanX := stat.Mean(xs, nil)
	sxx := stat.PopVariance(xs, nil) * float64(n)
	r := Regression{N: n, meanX: meanX, sxx: sxx}
	if sxx > 0 {
		r.Intercept, r.Slope = stat.LinearRegression(xs, ys, nil, false)
	} else {
		r.Intercept = stat.Mean(ys, nil)
	}

	sse := 0.0
	for i := range xs {
		res := ys[i] - r.Predict(xs[i])
		sse += res * res
	}

	switch {
	case stat.PopVariance(ys, nil) == 0:
		r.R2 = 1
	case sxx == 0:
		r.R2 = 0
	default:
		r.R2 = math.Max(0, stat.RSquared(xs, ys, nil, r.Intercept, r.Slope))
	}
	if n > 2 {
		r.se = math.Sqrt(sse / float64(n-2))
	}
	return r
}

// Predict evaluates the fitted line at x
func (r Regression) Predict(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// PredictionHalfWidth returns z times the standard error of a new
// observation at x
func (r Regression) PredictionHalfWidth(x, z float64) float64 {
	if r.N == 0 {
		return 0
	}
	leverage := 1 + 1/float64(r.N)
	if r.sxx > 0 {
		leverage += (x - r.meanX) * (x - r.meanX) / r.sxx
	}
	return z * r.se * math.Sqrt(leverage)
}

// Pearson returns the correlation coefficient of xs and ys, 0 when either
// series is constant
func Pearson(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return 0
	}
	return stat.Correlation(xs, ys, nil)
}
