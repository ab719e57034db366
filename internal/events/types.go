// Package events provides the typed notification fabric that carries alert
// lifecycle, data and connection changes to dashboard consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"gql-dashboard/pkg/types"
)

// Kind identifies an event variant
type Kind string

const (
	// Alert lifecycle events
	KindAlertTriggered    Kind = "alert-triggered"
	KindAlertResolved     Kind = "alert-resolved"
	KindAlertAcknowledged Kind = "alert-acknowledged"

	// Data events
	KindDataUpdated Kind = "data-updated"
	KindKPIUpdated  Kind = "kpi-updated"

	// Connection events
	KindConnectionChanged Kind = "connection-changed"
	KindTransportError    Kind = "transport-error"
)

// Kinds returns every known event kind
func Kinds() []Kind {
	return []Kind{
		KindAlertTriggered, KindAlertResolved, KindAlertAcknowledged,
		KindDataUpdated, KindKPIUpdated,
		KindConnectionChanged, KindTransportError,
	}
}

// Event is implemented by every payload variant
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
}

// AlertTriggered is emitted when a rule opens a new alert
type AlertTriggered struct {
	Alert types.Alert `json:"alert"`
	At    time.Time   `json:"at"`
}

func (e AlertTriggered) Kind() Kind            { return KindAlertTriggered }
func (e AlertTriggered) OccurredAt() time.Time { return e.At }

// AlertResolved is emitted when an active alert's condition clears
type AlertResolved struct {
	Alert types.Alert `json:"alert"`
	At    time.Time   `json:"at"`
}

func (e AlertResolved) Kind() Kind            { return KindAlertResolved }
func (e AlertResolved) OccurredAt() time.Time { return e.At }

// AlertAcknowledged is emitted when a user acknowledges an alert
type AlertAcknowledged struct {
	Alert types.Alert `json:"alert"`
	At    time.Time   `json:"at"`
}

func (e AlertAcknowledged) Kind() Kind            { return KindAlertAcknowledged }
func (e AlertAcknowledged) OccurredAt() time.Time { return e.At }

// DataUpdated carries newly ingested metrics
type DataUpdated struct {
	Metrics []types.MetricRecord `json:"metrics"`
	At      time.Time            `json:"at"`
}

func (e DataUpdated) Kind() Kind            { return KindDataUpdated }
func (e DataUpdated) OccurredAt() time.Time { return e.At }

// KPIUpdated carries a fresh KPI roll-up
type KPIUpdated struct {
	KPI types.KPISnapshot `json:"kpi"`
	At  time.Time         `json:"at"`
}

func (e KPIUpdated) Kind() Kind            { return KindKPIUpdated }
func (e KPIUpdated) OccurredAt() time.Time { return e.At }

// ConnectionChanged reports a transport state transition
type ConnectionChanged struct {
	From    types.ConnectionState `json:"from"`
	To      types.ConnectionState `json:"to"`
	Attempt int                   `json:"attempt,omitempty"`
	At      time.Time             `json:"at"`
}

func (e ConnectionChanged) Kind() Kind            { return KindConnectionChanged }
func (e ConnectionChanged) OccurredAt() time.Time { return e.At }

// TransportError reports a recoverable network or protocol failure
type TransportError struct {
	Operation string    `json:"operation"`
	Err       error     `json:"-"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// NewTransportError builds a TransportError with its message filled in
func NewTransportError(operation string, err error, at time.Time) TransportError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return TransportError{Operation: operation, Err: err, Message: msg, At: at}
}

func (e TransportError) Kind() Kind            { return KindTransportError }
func (e TransportError) OccurredAt() time.Time { return e.At }

// Envelope is the wire form of an event for websocket and Redis consumers
type Envelope struct {
	ID        string    `json:"id"`
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// NewEnvelope wraps an event for serialization
func NewEnvelope(e Event) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Type:      e.Kind(),
		Timestamp: e.OccurredAt(),
		Payload:   e,
	}
}

// EndpointOf returns the endpoint an event concerns, or "" when it is not
// endpoint-scoped
func EndpointOf(e Event) string {
	switch ev := e.(type) {
	case AlertTriggered:
		return ev.Alert.EndpointID
	case AlertResolved:
		return ev.Alert.EndpointID
	case AlertAcknowledged:
		return ev.Alert.EndpointID
	case DataUpdated:
		if len(ev.Metrics) == 0 {
			return ""
		}
		first := ev.Metrics[0].EndpointID
		for _, m := range ev.Metrics[1:] {
			if m.EndpointID != first {
				return ""
			}
		}
		return first
	}
	return ""
}
