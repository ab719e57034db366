// Package timeseries implements the stateful streaming analytics behind the
// dashboard charts: a bounded metric buffer, multi-resolution rollups,
// baselines, period comparison, seasonal forecasting, multi-detector anomaly
// detection, correlation, drill-down reports and windowed stream alerts.
package timeseries

import (
	"sort"
	"sync"

	"gql-dashboard/internal/gqlquery"
	"gql-dashboard/internal/logging"
	"gql-dashboard/pkg/types"
)

// Config tunes the streaming analytics
type Config struct {
	// BufferSize bounds the number of retained data points
	BufferSize int
	// OutlierZ is the |z| above which a point is an outlier
	OutlierZ float64
	// SmoothingWindow is the trailing moving-average width for stream trends
	SmoothingWindow int
	// BaselineK is the number of standard deviations in a baseline band
	BaselineK float64
	// Alpha is the significance level for period comparison
	Alpha float64
	// TopN bounds the drill-down top-query list
	TopN int
	// SeasonalityThreshold is the minimum strength for a detected pattern
	SeasonalityThreshold float64
	// StepChangeThreshold is the minimum effect size for a step change
	StepChangeThreshold float64
	// MinSegment is the minimum points on each side of a change point
	MinSegment int
	// ContextualK is the MAD multiple for contextual ranges
	ContextualK float64
	// MinContextSamples is the minimum samples per hour for a context
	MinContextSamples int
	// CorrelationThreshold is the minimum |r| for a significant pair
	CorrelationThreshold float64
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:           10000,
		OutlierZ:             3.0,
		SmoothingWindow:      5,
		BaselineK:            2.0,
		Alpha:                0.05,
		TopN:                 10,
		SeasonalityThreshold: 0.3,
		StepChangeThreshold:  3.0,
		MinSegment:           5,
		ContextualK:          3.0,
		MinContextSamples:    5,
		CorrelationThreshold: 0.3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.OutlierZ <= 0 {
		c.OutlierZ = def.OutlierZ
	}
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = def.SmoothingWindow
	}
	if c.BaselineK <= 0 {
		c.BaselineK = def.BaselineK
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = def.Alpha
	}
	if c.TopN <= 0 {
		c.TopN = def.TopN
	}
	if c.SeasonalityThreshold <= 0 {
		c.SeasonalityThreshold = def.SeasonalityThreshold
	}
	if c.StepChangeThreshold <= 0 {
		c.StepChangeThreshold = def.StepChangeThreshold
	}
	if c.MinSegment <= 0 {
		c.MinSegment = def.MinSegment
	}
	if c.ContextualK <= 0 {
		c.ContextualK = def.ContextualK
	}
	if c.MinContextSamples <= 0 {
		c.MinContextSamples = def.MinContextSamples
	}
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
	return c
}

// Analytics owns a bounded ring buffer of recent metrics plus the stream
// alert state. All other operations are pure functions of their arguments.
type Analytics struct {
	config   Config
	logger   logging.Logger
	analyzer *gqlquery.Analyzer

	mu    sync.RWMutex
	ring  []types.MetricRecord
	start int
	count int

	alertMu     sync.Mutex
	alertRules  []StreamAlertRule
	alertStates map[string]*streamAlertState
}

// New creates a streaming analytics instance
func New(config Config, analyzer *gqlquery.Analyzer, logger logging.Logger) *Analytics {
	config = config.withDefaults()
	if analyzer == nil {
		analyzer = gqlquery.NewAnalyzer()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Analytics{
		config:      config,
		logger:      logger.WithComponent("timeseries"),
		analyzer:    analyzer,
		ring:        make([]types.MetricRecord, config.BufferSize),
		alertStates: make(map[string]*streamAlertState),
	}
}

// Config returns the effective configuration
func (a *Analytics) Config() Config {
	return a.config
}

// AddDataPoint appends m to the buffer, evicting the oldest point when full.
// Invalid records are rejected.
func (a *Analytics) AddDataPoint(m types.MetricRecord) error {
	if err := m.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count < len(a.ring) {
		a.ring[(a.start+a.count)%len(a.ring)] = m
		a.count++
		return nil
	}
	a.ring[a.start] = m
	a.start = (a.start + 1) % len(a.ring)
	return nil
}

// DataPoints returns a copy of the buffer, oldest first
func (a *Analytics) DataPoints() []types.MetricRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]types.MetricRecord, a.count)
	for i := 0; i < a.count; i++ {
		out[i] = a.ring[(a.start+i)%len(a.ring)]
	}
	return out
}

// Len returns the number of buffered points
func (a *Analytics) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// Clear empties the buffer
func (a *Analytics) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring = make([]types.MetricRecord, len(a.ring))
	a.start, a.count = 0, 0
}

// validSorted returns the valid records of metrics ordered by timestamp,
// ties in input order
func validSorted(metrics []types.MetricRecord) []types.MetricRecord {
	out := make([]types.MetricRecord, 0, len(metrics))
	for _, m := range metrics {
		if m.Validate() == nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func executionTimes(metrics []types.MetricRecord) []float64 {
	values := make([]float64, len(metrics))
	for i, m := range metrics {
		values[i] = m.ExecutionTime
	}
	return values
}
