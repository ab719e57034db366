package timeseries

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

// MetricBaseline is the expected band for one field
type MetricBaseline struct {
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stdDev"`
	Upper      float64 `json:"upper"`
	Lower      float64 `json:"lower"`
	SampleSize int     `json:"sampleSize"`
}

// Baseline is the expected behaviour learned from a historical population
type Baseline struct {
	Metrics       map[types.MetricField]MetricBaseline `json:"metrics"`
	K             float64                              `json:"k"`
	Confidence    float64                              `json:"confidence"`
	SampleSize    int                                  `json:"sampleSize"`
	EstablishedAt time.Time                            `json:"establishedAt"`
}

// EstablishBaseline computes mean ± k·σ per field. Confidence grows with
// sample size up to 30 points and shrinks with the execution-time
// coefficient of variation.
func (a *Analytics) EstablishBaseline(metrics []types.MetricRecord) (*Baseline, error) {
	valid := validSorted(metrics)
	if len(valid) < 2 {
		return nil, dasherrors.NewInsufficientDataError("baseline", 2, len(valid))
	}

	k := a.config.BaselineK
	b := &Baseline{
		Metrics:       make(map[types.MetricField]MetricBaseline),
		K:             k,
		SampleSize:    len(valid),
		EstablishedAt: valid[len(valid)-1].Timestamp,
	}
	for _, field := range types.MetricFields() {
		values := fieldValues(valid, field)
		mean, std := analytics.Mean(values), analytics.StdDev(values)
		b.Metrics[field] = MetricBaseline{
			Mean:       mean,
			StdDev:     std,
			Upper:      mean + k*std,
			Lower:      math.Max(0, mean-k*std),
			SampleSize: len(values),
		}
	}

	exec := b.Metrics[types.FieldExecutionTime]
	cv := 0.0
	if exec.Mean > 0 {
		cv = exec.StdDev / exec.Mean
	}
	b.Confidence = math.Min(1, float64(len(valid))/30) / (1 + cv)
	return b, nil
}

func fieldValues(metrics []types.MetricRecord, field types.MetricField) []float64 {
	values := make([]float64, 0, len(metrics))
	for i := range metrics {
		if v, ok := metrics[i].Value(field); ok {
			values = append(values, v)
		}
	}
	return values
}

// DeviationType classifies a departure from the baseline band
type DeviationType string

const (
	DeviationDegradation DeviationType = "performance_degradation"
	DeviationImprovement DeviationType = "unexpected_improvement"
)

// Deviation is one field whose current mean left the baseline band
type Deviation struct {
	Field         types.MetricField `json:"field"`
	Type          DeviationType     `json:"type"`
	CurrentValue  float64           `json:"currentValue"`
	Expected      float64           `json:"expected"`
	Bound         float64           `json:"bound"`
	SigmaDistance float64           `json:"sigmaDistance"`
	Severity      types.Severity    `json:"severity"`
}

// DetectDeviations compares the current population's mean per field against
// the baseline. Degradation severity scales with the σ distance from the
// baseline mean; improvements are always low severity.
func (a *Analytics) DetectDeviations(current []types.MetricRecord, baseline *Baseline) []Deviation {
	deviations := []Deviation{}
	valid := validSorted(current)
	if baseline == nil || len(valid) == 0 {
		return deviations
	}

	for _, field := range types.MetricFields() {
		band, ok := baseline.Metrics[field]
		if !ok {
			continue
		}
		cur := analytics.Mean(fieldValues(valid, field))

		var d Deviation
		switch {
		case cur > band.Upper:
			d = Deviation{Type: DeviationDegradation, Bound: band.Upper}
		case cur < band.Lower:
			d = Deviation{Type: DeviationImprovement, Bound: band.Lower}
		default:
			continue
		}
		d.Field = field
		d.CurrentValue = cur
		d.Expected = band.Mean
		if band.StdDev > 0 {
			d.SigmaDistance = math.Abs(cur-band.Mean) / band.StdDev
		}
		d.Severity = deviationSeverity(d, band.StdDev, baseline.K)
		deviations = append(deviations, d)
	}
	return deviations
}

func deviationSeverity(d Deviation, std, k float64) types.Severity {
	if d.Type == DeviationImprovement {
		return types.SeverityLow
	}
	if std == 0 {
		return types.SeverityCritical
	}
	switch {
	case d.SigmaDistance >= 2*k:
		return types.SeverityCritical
	case d.SigmaDistance >= 1.5*k:
		return types.SeverityHigh
	case d.SigmaDistance >= 1.25*k:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// ChangeDirection classifies a period-over-period change. Lower values are
// better for every compared metric.
type ChangeDirection string

const (
	ChangeImprovement ChangeDirection = "improvement"
	ChangeDegradation ChangeDirection = "degradation"
	ChangeNone        ChangeDirection = "no_change"
)

// MetricComparison is the comparison of one metric across two periods
type MetricComparison struct {
	Metric           string          `json:"metric"`
	CurrentMean      float64         `json:"currentMean"`
	PriorMean        float64         `json:"priorMean"`
	PercentChange    float64         `json:"percentChange"`
	Direction        ChangeDirection `json:"direction"`
	TStatistic       float64         `json:"tStatistic"`
	DegreesOfFreedom float64         `json:"degreesOfFreedom"`
	PValue           float64         `json:"pValue"`
	Significant      bool            `json:"significant"`
}

// PeriodComparison compares a current period with a prior one
type PeriodComparison struct {
	CurrentCount int                `json:"currentCount"`
	PriorCount   int                `json:"priorCount"`
	Alpha        float64            `json:"alpha"`
	Metrics      []MetricComparison `json:"metrics"`
}

// ComparePeriods compares execution time, response size and error rate with
// Welch's two-sample t-test. Each period needs at least two valid points.
func (a *Analytics) ComparePeriods(current, prior []types.MetricRecord) (*PeriodComparison, error) {
	cur, pri := validSorted(current), validSorted(prior)
	if len(cur) < 2 {
		return nil, dasherrors.NewInsufficientDataError("compare current period", 2, len(cur))
	}
	if len(pri) < 2 {
		return nil, dasherrors.NewInsufficientDataError("compare prior period", 2, len(pri))
	}

	result := &PeriodComparison{
		CurrentCount: len(cur),
		PriorCount:   len(pri),
		Alpha:        a.config.Alpha,
	}
	for _, field := range types.MetricFields() {
		result.Metrics = append(result.Metrics,
			a.compare(string(field), fieldValues(cur, field), fieldValues(pri, field)))
	}
	result.Metrics = append(result.Metrics, a.compare("errorRate", errorFlags(cur), errorFlags(pri)))
	return result, nil
}

func errorFlags(metrics []types.MetricRecord) []float64 {
	flags := make([]float64, len(metrics))
	for i := range metrics {
		if metrics[i].Failed() {
			flags[i] = 1
		}
	}
	return flags
}

func (a *Analytics) compare(name string, cur, pri []float64) MetricComparison {
	mc := MetricComparison{
		Metric:      name,
		CurrentMean: analytics.Mean(cur),
		PriorMean:   analytics.Mean(pri),
	}
	mc.PercentChange = percentChange(mc.PriorMean, mc.CurrentMean)
	switch {
	case mc.CurrentMean < mc.PriorMean:
		mc.Direction = ChangeImprovement
	case mc.CurrentMean > mc.PriorMean:
		mc.Direction = ChangeDegradation
	default:
		mc.Direction = ChangeNone
	}

	mc.TStatistic, mc.DegreesOfFreedom, mc.PValue = WelchTTest(cur, pri)
	mc.Significant = mc.PValue < a.config.Alpha
	return mc
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		switch {
		case to > 0:
			return 100
		case to < 0:
			return -100
		}
		return 0
	}
	return (to - from) / math.Abs(from) * 100
}

// WelchTTest returns the t statistic, Welch–Satterthwaite degrees of freedom
// and two-tailed p-value for the difference in means of xs and ys. Both
// samples need at least two values. With zero variance in both samples the
// p-value is 1 for equal means and 0 otherwise.
func WelchTTest(xs, ys []float64) (t, df, p float64) {
	n1, n2 := float64(len(xs)), float64(len(ys))
	if n1 < 2 || n2 < 2 {
		return 0, 0, 1
	}
	m1, m2 := analytics.Mean(xs), analytics.Mean(ys)
	s1 := analytics.SampleVariance(xs) / n1
	s2 := analytics.SampleVariance(ys) / n2

	if s1+s2 == 0 {
		if m1 == m2 {
			return 0, n1 + n2 - 2, 1
		}
		return 0, n1 + n2 - 2, 0
	}

	t = (m1 - m2) / math.Sqrt(s1+s2)
	df = (s1 + s2) * (s1 + s2) / (s1*s1/(n1-1) + s2*s2/(n2-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.CDF(-math.Abs(t))
	return t, df, math.Min(1, math.Max(0, p))
}
