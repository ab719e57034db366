package handlers

import (
	"io"
	"net/http"

	"gql-dashboard/internal/api/response"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/internal/timeseries"
)

// MetricsHandler ingests metric records and exposes the live buffer, KPIs
// and stream controls
type MetricsHandler struct {
	service *realtime.Service
	series  *timeseries.Analytics
	history *realtime.HistoryClient
}

// NewMetricsHandler creates a metrics handler. history may be nil.
func NewMetricsHandler(service *realtime.Service, series *timeseries.Analytics, history *realtime.HistoryClient) *MetricsHandler {
	return &MetricsHandler{service: service, series: series, history: history}
}

// Ingest handles POST /metrics. The body may be one record, an array of
// records or a stream envelope.
func (h *MetricsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.WriteError(w, dasherrors.NewValidationError("body", "unreadable request body", nil))
		return
	}
	records, skipped, err := realtime.DecodeMessage(body)
	if err != nil {
		response.WriteError(w, dasherrors.NewValidationError("body", err.Error(), nil))
		return
	}
	if len(records) == 0 {
		response.WriteBadRequest(w, "body", "no metric records", nil)
		return
	}
	result := h.service.Submit(records)
	result.Rejected += len(skipped)
	response.WriteSuccess(w, http.StatusAccepted, result)
}

// List handles GET /metrics?endpointId=&start=&end=&limit=, returning the
// newest matching records oldest first
func (h *MetricsHandler) List(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 500)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	selected := sel.apply(h.series.DataPoints())
	if limit > 0 && len(selected) > limit {
		selected = selected[len(selected)-limit:]
	}
	response.WriteOK(w, selected)
}

// Resolutions handles GET /metrics/resolutions
func (h *MetricsHandler) Resolutions(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, h.series.GenerateMultiResolutionData(sel.apply(h.series.DataPoints())))
}

// Backfill handles POST /metrics/backfill?endpointId=&start=&end=&limit=. The
// fetched history is ingested like any other batch.
func (h *MetricsHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.WriteError(w, dasherrors.NewStandardError(dasherrors.ErrorCodeServiceUnavailable,
			"no history API configured", nil))
		return
	}
	sel, err := parseSelection(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	records, err := h.history.Fetch(r.Context(), realtime.HistoryQuery{
		EndpointID: sel.endpointID,
		Start:      sel.start,
		End:        sel.end,
		Limit:      limit,
	})
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, h.service.Submit(records))
}

// KPIs handles GET /kpis
func (h *MetricsHandler) KPIs(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, h.service.KPIs())
}

// Status handles GET /stream
func (h *MetricsHandler) Status(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, h.service.Status())
}

// Connect handles POST /stream/connect
func (h *MetricsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Connect(r.Context()); err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, h.service.Status())
}

// Disconnect handles POST /stream/disconnect
func (h *MetricsHandler) Disconnect(w http.ResponseWriter, _ *http.Request) {
	h.service.Disconnect()
	response.WriteOK(w, h.service.Status())
}
