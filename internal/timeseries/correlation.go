package timeseries

import (
	"math"
	"sort"

	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

// Correlated variables
const (
	VarExecutionTime   = "executionTime"
	VarResponseSize    = "responseSize"
	VarErrorFlag       = "errorFlag"
	VarQueryComplexity = "queryComplexity"
)

// CorrelationStrength labels the magnitude of a coefficient
type CorrelationStrength string

const (
	StrengthStrong   CorrelationStrength = "strong"
	StrengthModerate CorrelationStrength = "moderate"
	StrengthWeak     CorrelationStrength = "weak"
)

// CorrelationPair is one significant pairwise correlation
type CorrelationPair struct {
	A           string              `json:"a"`
	B           string              `json:"b"`
	Coefficient float64             `json:"coefficient"`
	Strength    CorrelationStrength `json:"strength"`
}

// CorrelationMatrix holds the Pearson coefficients between every pair of
// variables plus the pairs whose |r| clears the significance threshold
type CorrelationMatrix struct {
	Variables   []string          `json:"variables"`
	Matrix      [][]float64       `json:"matrix"`
	Significant []CorrelationPair `json:"significant"`
	SampleSize  int               `json:"sampleSize"`
}

// CalculateCorrelationMatrix correlates execution time, response size,
// error flag and query complexity. A constant variable correlates 0 with
// everything but itself.
func (a *Analytics) CalculateCorrelationMatrix(metrics []types.MetricRecord) (*CorrelationMatrix, error) {
	valid := validSorted(metrics)
	if len(valid) < 3 {
		return nil, dasherrors.NewInsufficientDataError("correlation matrix", 3, len(valid))
	}

	names := []string{VarExecutionTime, VarResponseSize, VarErrorFlag, VarQueryComplexity}
	columns := [][]float64{
		executionTimes(valid),
		fieldValues(valid, types.FieldResponseSize),
		errorFlags(valid),
		make([]float64, len(valid)),
	}
	for i, m := range valid {
		columns[3][i] = a.analyzer.Analyze(m.Query).Complexity()
	}

	result := &CorrelationMatrix{
		Variables:   names,
		Matrix:      make([][]float64, len(names)),
		Significant: []CorrelationPair{},
		SampleSize:  len(valid),
	}
	for i := range names {
		result.Matrix[i] = make([]float64, len(names))
		result.Matrix[i][i] = 1
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			r := analytics.Pearson(columns[i], columns[j])
			result.Matrix[i][j], result.Matrix[j][i] = r, r
			if math.Abs(r) >= a.config.CorrelationThreshold {
				result.Significant = append(result.Significant, CorrelationPair{
					A: names[i], B: names[j], Coefficient: r, Strength: strengthOf(r),
				})
			}
		}
	}
	sort.SliceStable(result.Significant, func(i, j int) bool {
		return math.Abs(result.Significant[i].Coefficient) > math.Abs(result.Significant[j].Coefficient)
	})
	return result, nil
}

func strengthOf(r float64) CorrelationStrength {
	switch abs := math.Abs(r); {
	case abs >= 0.7:
		return StrengthStrong
	case abs >= 0.5:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
