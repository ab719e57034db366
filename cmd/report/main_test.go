package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/pkg/types"
)

func sampleRecords() []types.MetricRecord {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	records := make([]types.MetricRecord, 0, 12)
	for i := 0; i < 12; i++ {
		query := "query Users { users { id } }"
		if i%3 == 0 {
			query = "query Orders { orders { id total } }"
		}
		records = append(records, types.MetricRecord{
			ID:            "m" + string(rune('a'+i)),
			EndpointID:    "users-api",
			Query:         query,
			ExecutionTime: 100 + float64(i)*20,
			ResponseSize:  1024,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Success:       true,
		})
	}
	return records
}

func TestReporter_Write(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	r := newReporter(&buf, 2)
	require.NoError(t, r.Write(sampleRecords(), types.FieldExecutionTime))

	out := buf.String()
	assert.Contains(t, out, "GraphQL performance report")
	assert.Contains(t, out, "12 records from 2024-03-04T10:00:00Z to 2024-03-04T10:11:00Z")
	assert.Contains(t, out, "Percentiles (executionTime)")
	assert.Contains(t, out, "degrading")
	assert.Contains(t, out, "1. Users")
	assert.Contains(t, out, "2. Orders")
	assert.NotContains(t, out, " 3. ")
}

func TestReporter_SmallSetSkipsTrend(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	r := newReporter(&buf, 5)
	require.NoError(t, r.Write(sampleRecords()[:1], types.FieldExecutionTime))
	assert.Contains(t, buf.String(), "skipped:")
}

func TestReporter_Errors(t *testing.T) {
	r := newReporter(&bytes.Buffer{}, 5)
	assert.Error(t, r.Write(nil, types.FieldExecutionTime))
	assert.Error(t, r.Write(sampleRecords(), types.MetricField("latency")))
}

func TestFilterEndpoint(t *testing.T) {
	records := sampleRecords()
	records[0].EndpointID = "orders-api"

	assert.Len(t, filterEndpoint(records, ""), 12)
	filtered := filterEndpoint(records, "orders-api")
	require.Len(t, filtered, 1)
	assert.Equal(t, "orders-api", filtered[0].EndpointID)
}
