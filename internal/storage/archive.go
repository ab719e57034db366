package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/events"
	"gql-dashboard/internal/logging"
	"gql-dashboard/pkg/types"
)

// AlertArchive keeps every alert the engine has raised, with its latest
// lifecycle state. It subscribes to alert events on the dispatcher.
type AlertArchive struct {
	db      *sql.DB
	logger  logging.Logger
	timeout time.Duration
}

// NewAlertArchive creates an archive on an open database
func NewAlertArchive(db *sql.DB, logger logging.Logger) *AlertArchive {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &AlertArchive{db: db, logger: logger.WithComponent("alert_archive"), timeout: 5 * time.Second}
}

// Kinds lists the events the archive consumes
func (a *AlertArchive) Kinds() []events.Kind {
	return []events.Kind{events.KindAlertTriggered, events.KindAlertAcknowledged, events.KindAlertResolved}
}

// Handle implements events.Listener. Write failures are logged, never
// propagated to the publisher.
func (a *AlertArchive) Handle(e events.Event) {
	var alert types.Alert
	switch ev := e.(type) {
	case events.AlertTriggered:
		alert = ev.Alert
	case events.AlertAcknowledged:
		alert = ev.Alert
	case events.AlertResolved:
		alert = ev.Alert
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.Save(ctx, alert, e.OccurredAt()); err != nil {
		a.logger.Error("Failed to archive alert", "alert_id", alert.ID, "kind", string(e.Kind()), "error", err)
	}
}

// Save upserts an alert
func (a *AlertArchive) Save(ctx context.Context, alert types.Alert, updatedAt time.Time) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return dasherrors.NewInternalError("encode alert", err)
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = a.db.ExecContext(ctx, `INSERT INTO alert_archive
		(id, rule_id, endpoint_id, severity, status, triggered_at, updated_at, alert_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at,
			alert_json = excluded.alert_json`,
		alert.ID, alert.RuleID, alert.EndpointID, string(alert.Severity), string(alert.Status),
		alert.TriggeredAt.UnixMilli(), updatedAt.UnixMilli(), string(data))
	if err != nil {
		return dasherrors.NewDatabaseError("archive alert", err)
	}
	return nil
}

// Get returns an archived alert
func (a *AlertArchive) Get(ctx context.Context, id string) (types.Alert, error) {
	var data string
	err := a.db.QueryRowContext(ctx, `SELECT alert_json FROM alert_archive WHERE id = ?`, id).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return types.Alert{}, dasherrors.NewNotFoundError("alert", id)
	}
	if err != nil {
		return types.Alert{}, dasherrors.NewDatabaseError("get archived alert", err)
	}
	var alert types.Alert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return types.Alert{}, dasherrors.NewInternalError("decode alert", err)
	}
	return alert, nil
}

// ArchiveFilter narrows List results. Zero values match everything.
type ArchiveFilter struct {
	EndpointID string
	Status     types.AlertStatus
	Since      time.Time
	Limit      int
}

// List returns archived alerts, most recently triggered first
func (a *AlertArchive) List(ctx context.Context, filter ArchiveFilter) ([]types.Alert, error) {
	query := `SELECT alert_json FROM alert_archive WHERE 1=1`
	var args []interface{}
	if filter.EndpointID != "" {
		query += " AND endpoint_id = ?"
		args = append(args, filter.EndpointID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += " AND triggered_at >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	query += " ORDER BY triggered_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dasherrors.NewDatabaseError("list archived alerts", err)
	}
	defer rows.Close()

	alerts := make([]types.Alert, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, dasherrors.NewDatabaseError("scan archived alert", err)
		}
		var alert types.Alert
		if err := json.Unmarshal([]byte(data), &alert); err != nil {
			return nil, dasherrors.NewInternalError("decode alert", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, dasherrors.NewDatabaseError("list archived alerts", err)
	}
	return alerts, nil
}
