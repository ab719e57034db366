package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/pkg/types"
)

// selection is the endpointId/start/end filter shared by the read endpoints
type selection struct {
	endpointID string
	start      time.Time
	end        time.Time
}

func parseSelection(r *http.Request) (selection, error) {
	q := r.URL.Query()
	sel := selection{endpointID: q.Get("endpointId")}
	var err error
	if sel.start, err = parseTimeParam(q.Get("start"), "start"); err != nil {
		return sel, err
	}
	if sel.end, err = parseTimeParam(q.Get("end"), "end"); err != nil {
		return sel, err
	}
	if !sel.start.IsZero() && !sel.end.IsZero() && sel.end.Before(sel.start) {
		return sel, dasherrors.NewValidationError("end", "must not be before start", q.Get("end"))
	}
	return sel, nil
}

// apply returns the metrics matching the selection, preserving order. Unset
// bounds are open.
func (s selection) apply(metrics []types.MetricRecord) []types.MetricRecord {
	out := make([]types.MetricRecord, 0, len(metrics))
	for _, m := range metrics {
		if s.endpointID != "" && m.EndpointID != s.endpointID {
			continue
		}
		if !s.start.IsZero() && m.Timestamp.Before(s.start) {
			continue
		}
		if !s.end.IsZero() && m.Timestamp.After(s.end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// parseTimeParam accepts RFC 3339 or epoch milliseconds. Empty is the zero time.
func parseTimeParam(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, dasherrors.NewValidationError(name, "must be RFC 3339 or epoch milliseconds", v)
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dasherrors.NewValidationError(name, "must be a non-negative integer", v)
	}
	return n, nil
}

func fieldParam(r *http.Request) types.MetricField {
	if f := r.URL.Query().Get("field"); f != "" {
		return types.MetricField(f)
	}
	return types.FieldExecutionTime
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dasherrors.NewValidationError("body", "invalid JSON: "+err.Error(), nil)
	}
	return nil
}
