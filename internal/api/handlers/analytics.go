package handlers

import (
	"net/http"

	"gql-dashboard/internal/analytics"
	"gql-dashboard/internal/api/response"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/timeseries"
	"gql-dashboard/pkg/types"
)

// AnalyticsHandler runs the analytics operations over the buffered series.
// Every endpoint accepts the endpointId/start/end selection.
type AnalyticsHandler struct {
	series      *timeseries.Analytics
	performance *analytics.PerformanceAnalytics
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(series *timeseries.Analytics, performance *analytics.PerformanceAnalytics) *AnalyticsHandler {
	return &AnalyticsHandler{series: series, performance: performance}
}

// selected applies the request selection to the buffer, writing the error
// response itself when the selection is invalid
func (h *AnalyticsHandler) selected(w http.ResponseWriter, r *http.Request) ([]types.MetricRecord, bool) {
	sel, err := parseSelection(r)
	if err != nil {
		response.WriteError(w, err)
		return nil, false
	}
	return sel.apply(h.series.DataPoints()), true
}

func writeResult(w http.ResponseWriter, result interface{}, err error) {
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, result)
}

// Aggregate handles GET /analytics/aggregate?window=hour|day|week|month
func (h *AnalyticsHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	window := analytics.Window(r.URL.Query().Get("window"))
	if window == "" {
		window = analytics.WindowHour
	}
	result, err := h.performance.AggregateByTimeWindow(metrics, window)
	writeResult(w, result, err)
}

// Trend handles GET /analytics/trend?field=
func (h *AnalyticsHandler) Trend(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	result, err := h.performance.CalculatePerformanceTrend(metrics, fieldParam(r))
	writeResult(w, result, err)
}

// Percentiles handles GET /analytics/percentiles?field=
func (h *AnalyticsHandler) Percentiles(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	result, err := h.performance.CalculatePercentiles(metrics, fieldParam(r))
	writeResult(w, result, err)
}

// Anomalies handles GET /analytics/anomalies?field=&method=zscore|ensemble|contextual
func (h *AnalyticsHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	switch method := r.URL.Query().Get("method"); method {
	case "", "zscore":
		result, err := h.performance.DetectAnomalies(metrics, fieldParam(r))
		writeResult(w, result, err)
	case "ensemble":
		response.WriteOK(w, h.series.DetectAnomalies(metrics))
	case "contextual":
		response.WriteOK(w, h.series.DetectContextualAnomalies(metrics))
	default:
		response.WriteBadRequest(w, "method", "must be zscore, ensemble or contextual", method)
	}
}

// Forecast handles GET /analytics/forecast?field=&horizon= for a linear
// per-sample forecast, or ?hours= for the hourly seasonal forecast
func (h *AnalyticsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("hours") != "" {
		hours, err := parseIntParam(r, "hours", 24)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		result, err := h.series.GenerateForecast(metrics, hours)
		writeResult(w, result, err)
		return
	}
	horizon, err := parseIntParam(r, "horizon", 10)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	result, err := h.performance.GeneratePerformanceForecast(metrics, fieldParam(r), horizon)
	writeResult(w, result, err)
}

// DrillDown handles GET /analytics/drilldown; start and end are required
func (h *AnalyticsHandler) DrillDown(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if sel.start.IsZero() || sel.end.IsZero() {
		response.WriteError(w, dasherrors.NewRequiredFieldError("start/end"))
		return
	}
	metrics := sel.apply(h.series.DataPoints())
	response.WriteOK(w, h.series.GenerateDrillDownReport(metrics, sel.start, sel.end))
}

// Statistics handles GET /analytics/statistics
func (h *AnalyticsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	response.WriteOK(w, h.series.CalculateSelectionStatistics(metrics))
}

// Correlation handles GET /analytics/correlation
func (h *AnalyticsHandler) Correlation(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	result, err := h.series.CalculateCorrelationMatrix(metrics)
	writeResult(w, result, err)
}

// Seasonality handles GET /analytics/seasonality
func (h *AnalyticsHandler) Seasonality(w http.ResponseWriter, r *http.Request) {
	metrics, ok := h.selected(w, r)
	if !ok {
		return
	}
	result, err := h.series.DetectSeasonality(metrics)
	writeResult(w, result, err)
}

type baselineReport struct {
	Baseline   *timeseries.Baseline   `json:"baseline"`
	Deviations []timeseries.Deviation `json:"deviations"`
}

// Baseline handles GET /analytics/baseline?baselineStart=&baselineEnd=. The
// baseline is learned from the baseline range and the selection is checked
// against it.
func (h *AnalyticsHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	current, ok := h.selected(w, r)
	if !ok {
		return
	}
	reference, err := h.referencePeriod(r, "baselineStart", "baselineEnd")
	if err != nil {
		response.WriteError(w, err)
		return
	}
	baseline, err := h.series.EstablishBaseline(reference)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, baselineReport{
		Baseline:   baseline,
		Deviations: h.series.DetectDeviations(current, baseline),
	})
}

// Compare handles GET /analytics/compare?priorStart=&priorEnd=, comparing
// the selection with the prior range
func (h *AnalyticsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	current, ok := h.selected(w, r)
	if !ok {
		return
	}
	prior, err := h.referencePeriod(r, "priorStart", "priorEnd")
	if err != nil {
		response.WriteError(w, err)
		return
	}
	result, err := h.series.ComparePeriods(current, prior)
	writeResult(w, result, err)
}

// referencePeriod selects the buffered metrics of the request's endpoint in
// a second, required time range
func (h *AnalyticsHandler) referencePeriod(r *http.Request, startKey, endKey string) ([]types.MetricRecord, error) {
	q := r.URL.Query()
	if q.Get(startKey) == "" || q.Get(endKey) == "" {
		return nil, dasherrors.NewRequiredFieldError(startKey + "/" + endKey)
	}
	start, err := parseTimeParam(q.Get(startKey), startKey)
	if err != nil {
		return nil, err
	}
	end, err := parseTimeParam(q.Get(endKey), endKey)
	if err != nil {
		return nil, err
	}
	sel := selection{endpointID: q.Get("endpointId"), start: start, end: end}
	return sel.apply(h.series.DataPoints()), nil
}
