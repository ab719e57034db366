package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gql-dashboard/internal/circuitbreaker"
	dasherrors "gql-dashboard/internal/errors"
)

func TestHistoryClient_Fetch(t *testing.T) {
	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"endpointId":"users-api","executionTime":100,"timestamp":"2024-03-04T10:00:00Z","success":true},
			{"endpointId":"users-api","executionTime":110,"timestamp":"2024-03-04T10:01:00Z","success":true}
		]`))
	}))
	defer ts.Close()

	client := NewHistoryClient(ts.URL+"/history", time.Second, nil)
	records, err := client.Fetch(context.Background(), HistoryQuery{
		EndpointID: "users-api",
		Start:      base,
		End:        base.Add(time.Hour),
		Limit:      50,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 110.0, records[1].ExecutionTime)

	require.NotNil(t, got)
	assert.Equal(t, "/history", got.URL.Path)
	assert.Equal(t, "users-api", got.URL.Query().Get("endpointId"))
	assert.Equal(t, "2024-03-04T10:00:00Z", got.URL.Query().Get("start"))
	assert.Equal(t, "50", got.URL.Query().Get("limit"))
}

func TestHistoryClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	client := NewHistoryClient(ts.URL, 20*time.Millisecond, nil)
	_, err := client.Fetch(context.Background(), HistoryQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dasherrors.ErrTimeout)
	assert.False(t, dasherrors.HasCode(err, dasherrors.ErrorCodeTransportError))
}

func TestHistoryClient_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewHistoryClient(ts.URL, time.Second, nil).Fetch(context.Background(), HistoryQuery{})
	assert.ErrorIs(t, err, dasherrors.ErrTransport)
}

func TestHistoryClient_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"broken"`))
	}))
	defer ts.Close()

	_, err := NewHistoryClient(ts.URL, time.Second, nil).Fetch(context.Background(), HistoryQuery{})
	assert.ErrorIs(t, err, dasherrors.ErrTransport)
}

func TestHistoryClient_OpensCircuit(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewHistoryClient(ts.URL, time.Second, nil)
	threshold := circuitbreaker.DefaultConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		_, err := client.Fetch(context.Background(), HistoryQuery{})
		require.ErrorIs(t, err, dasherrors.ErrTransport)
	}

	_, err := client.Fetch(context.Background(), HistoryQuery{})
	require.Error(t, err)
	assert.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeServiceUnavailable))
	assert.Equal(t, int32(threshold), hits.Load())

	stats := client.Breaker()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(1), stats.Rejections)
}

func TestHistoryClient_BadURLDoesNotOpenCircuit(t *testing.T) {
	client := NewHistoryClient("://bad", time.Second, nil)
	for i := 0; i < 10; i++ {
		_, err := client.Fetch(context.Background(), HistoryQuery{})
		require.True(t, dasherrors.HasCode(err, dasherrors.ErrorCodeValidationError))
	}
	assert.Equal(t, "closed", client.Breaker().State)
}
