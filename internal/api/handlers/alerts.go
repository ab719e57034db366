package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gql-dashboard/internal/alerting"
	"gql-dashboard/internal/api/response"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/storage"
	"gql-dashboard/pkg/types"
)

// AlertHandler serves alert queries, acknowledgement and rule CRUD
type AlertHandler struct {
	engine  *alerting.Engine
	archive *storage.AlertArchive
}

// NewAlertHandler creates an alert handler. archive may be nil.
func NewAlertHandler(engine *alerting.Engine, archive *storage.AlertArchive) *AlertHandler {
	return &AlertHandler{engine: engine, archive: archive}
}

// ListActive handles GET /alerts
func (h *AlertHandler) ListActive(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, h.engine.GetActiveAlerts())
}

// Get handles GET /alerts/{id}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.GetAlert(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, alert)
}

type acknowledgeRequest struct {
	UserID string `json:"userId"`
}

// Acknowledge handles POST /alerts/{id}/acknowledge
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		response.WriteError(w, err)
		return
	}
	alert, err := h.engine.AcknowledgeAlert(chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, alert)
}

// History handles GET /alerts/history?limit=
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 100)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, h.engine.GetAlertHistory(limit))
}

// Statistics handles GET /alerts/statistics
func (h *AlertHandler) Statistics(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, h.engine.GetAlertStatistics())
}

// Archive handles GET /alerts/archive?endpointId=&status=&since=&limit=
func (h *AlertHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		response.WriteError(w, dasherrors.NewStandardError(dasherrors.ErrorCodeServiceUnavailable,
			"alert archive storage is disabled", nil))
		return
	}
	q := r.URL.Query()
	since, err := parseTimeParam(q.Get("since"), "since")
	if err != nil {
		response.WriteError(w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 100)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	alerts, err := h.archive.List(r.Context(), storage.ArchiveFilter{
		EndpointID: q.Get("endpointId"),
		Status:     types.AlertStatus(q.Get("status")),
		Since:      since,
		Limit:      limit,
	})
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, alerts)
}

// ListRules handles GET /rules
func (h *AlertHandler) ListRules(w http.ResponseWriter, _ *http.Request) {
	response.WriteOK(w, h.engine.GetRules())
}

// CreateRule handles POST /rules. Condition durations are milliseconds.
func (h *AlertHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		response.WriteError(w, err)
		return
	}
	created, err := h.engine.AddRule(rule)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusCreated, created)
}

// GetRule handles GET /rules/{id}
func (h *AlertHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.engine.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, rule)
}

// UpdateRule handles PATCH /rules/{id} with a partial rule
func (h *AlertHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var update types.RuleUpdate
	if err := decodeJSON(r, &update); err != nil {
		response.WriteError(w, err)
		return
	}
	rule, err := h.engine.UpdateRule(chi.URLParam(r, "id"), update)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, rule)
}

// DeleteRule handles DELETE /rules/{id}
func (h *AlertHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRule(chi.URLParam(r, "id")); err != nil {
		response.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
