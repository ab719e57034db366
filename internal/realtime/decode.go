package realtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"gql-dashboard/pkg/types"
)

// Upstream messages come in three shapes: a single record object, an array
// of records, or an envelope {"type": "...", "data": ...} wrapping either.
// Message types other than metric payloads are ignored.
var metricMessageTypes = map[string]bool{
	"":        true,
	"metric":  true,
	"metrics": true,
	"query":   true,
	"batch":   true,
}

// RecordError is an array element that could not be decoded
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// DecodeMessage turns one upstream message into metric records. Records
// without an ID get a generated one. Array elements that fail to decode are
// skipped and returned as RecordErrors; the message fails only when it is
// malformed as a whole or none of its elements decode.
func DecodeMessage(data []byte) ([]types.MetricRecord, []RecordError, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("malformed message: %w", err)
	}

	if obj, ok := raw.(map[string]interface{}); ok {
		if payload, wrapped := obj["data"]; wrapped {
			kind, _ := obj["type"].(string)
			if !metricMessageTypes[kind] {
				return nil, nil, nil
			}
			raw = payload
		}
	}

	switch v := raw.(type) {
	case []interface{}:
		records := make([]types.MetricRecord, 0, len(v))
		var skipped []RecordError
		for i, item := range v {
			m, err := decodeRecord(item)
			if err != nil {
				skipped = append(skipped, RecordError{Index: i, Err: err})
				continue
			}
			records = append(records, m)
		}
		if len(records) == 0 && len(skipped) > 0 {
			return nil, skipped, fmt.Errorf("malformed message: %w", skipped[0])
		}
		return records, skipped, nil
	case map[string]interface{}:
		m, err := decodeRecord(v)
		if err != nil {
			return nil, nil, err
		}
		return []types.MetricRecord{m}, nil, nil
	default:
		return nil, nil, fmt.Errorf("malformed message: unexpected %T payload", raw)
	}
}

func decodeRecord(input interface{}) (types.MetricRecord, error) {
	var m types.MetricRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &m,
		TagName:    "mapstructure",
		DecodeHook: timeHook,
	})
	if err != nil {
		return m, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return m, fmt.Errorf("decode metric: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return m, nil
}

// timeHook accepts RFC 3339 strings and unix epoch milliseconds
func timeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.Parse(time.RFC3339Nano, v)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	}
	return data, nil
}
