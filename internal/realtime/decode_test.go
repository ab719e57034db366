package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"single record", `{"endpointId":"a","executionTime":10,"timestamp":"2024-03-04T10:00:00Z","success":true}`, 1},
		{"array", `[{"endpointId":"a","timestamp":"2024-03-04T10:00:00Z"},{"endpointId":"b","timestamp":"2024-03-04T10:01:00Z"}]`, 2},
		{"envelope", `{"type":"metric","data":{"endpointId":"a","timestamp":"2024-03-04T10:00:00Z"}}`, 1},
		{"envelope batch", `{"type":"metrics","data":[{"endpointId":"a","timestamp":"2024-03-04T10:00:00Z"}]}`, 1},
		{"other envelope", `{"type":"heartbeat","data":{"ok":true}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, skipped, err := DecodeMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Empty(t, skipped)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestDecodeMessage_Fields(t *testing.T) {
	records, _, err := DecodeMessage([]byte(`{
		"endpointId": "users-api",
		"query": "query Users { users { id } }",
		"operationName": "Users",
		"variables": {"first": 10},
		"executionTime": 123.5,
		"responseSize": 2048,
		"timestamp": 1709546460000,
		"success": false,
		"statusCode": 500,
		"errors": ["boom"]
	}`))
	require.NoError(t, err)
	require.Len(t, records, 1)

	m := records[0]
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "users-api", m.EndpointID)
	assert.Equal(t, "Users", m.OperationName)
	assert.Equal(t, float64(10), m.Variables["first"])
	assert.Equal(t, 123.5, m.ExecutionTime)
	assert.Equal(t, int64(2048), m.ResponseSize)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC), m.Timestamp)
	assert.False(t, m.Success)
	assert.Equal(t, 500, m.StatusCode)
	assert.Equal(t, []string{"boom"}, m.Errors)
	assert.True(t, m.Failed())
}

func TestDecodeMessage_KeepsID(t *testing.T) {
	records, _, err := DecodeMessage([]byte(`{"id":"m-1","endpointId":"a","timestamp":"2024-03-04T10:00:00.5Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m-1", records[0].ID)
	assert.Equal(t, 500*time.Millisecond, records[0].Timestamp.Sub(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)))
}

func TestDecodeMessage_Malformed(t *testing.T) {
	for _, input := range []string{`not json`, `42`, `"text"`, `{"endpointId":"a","timestamp":"yesterday"}`, `[1, 2]`} {
		_, _, err := DecodeMessage([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestDecodeMessage_SkipsMalformedElements(t *testing.T) {
	records, skipped, err := DecodeMessage([]byte(`[
		{"endpointId":"a","executionTime":"slow","timestamp":"2024-03-04T10:00:00Z"},
		{"endpointId":"b","executionTime":40,"timestamp":"2024-03-04T10:01:00Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].EndpointID)

	require.Len(t, skipped, 1)
	assert.Equal(t, 0, skipped[0].Index)
	assert.Contains(t, skipped[0].Error(), "record 0")
	assert.Error(t, skipped[0].Unwrap())
}

func TestDecodeMessage_AllElementsMalformed(t *testing.T) {
	records, skipped, err := DecodeMessage([]byte(`{"type":"metrics","data":[{"timestamp":"yesterday"},{"executionTime":"slow"}]}`))
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Len(t, skipped, 2)
}
