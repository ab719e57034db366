package realtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gql-dashboard/internal/circuitbreaker"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/logging"
	"gql-dashboard/pkg/types"
)

const maxHistoryBody = 32 << 20

// HistoryQuery selects historical metrics
type HistoryQuery struct {
	EndpointID string
	Start      time.Time
	End        time.Time
	Limit      int
}

// HistoryClient fetches historical metrics from the upstream API
type HistoryClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.OperationLogger
}

// NewHistoryClient creates a client for baseURL. Requests that exceed
// timeout fail with a TIMEOUT error. After repeated transport failures the
// client stops calling the upstream for a while and fails with
// SERVICE_UNAVAILABLE.
func NewHistoryClient(baseURL string, timeout time.Duration, logger logging.Logger) *HistoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("history_client")

	cfg := circuitbreaker.DefaultConfig()
	cfg.IsFailure = upstreamFailure
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("History API circuit changed state", "from", from.String(), "to", to.String())
	}

	return &HistoryClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
		breaker: circuitbreaker.New(cfg),
		logger:  logging.NewOperationLogger(logger, timeout/2),
	}
}

// only network and deadline failures say anything about the upstream
func upstreamFailure(err error) bool {
	return dasherrors.HasCode(err, dasherrors.ErrorCodeTransportError) ||
		dasherrors.HasCode(err, dasherrors.ErrorCodeTimeout)
}

// Breaker exposes the circuit state for health reporting
func (c *HistoryClient) Breaker() circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// Fetch downloads the metrics matching q
func (c *HistoryClient) Fetch(ctx context.Context, q HistoryQuery) ([]types.MetricRecord, error) {
	var records []types.MetricRecord
	err := c.logger.LogOperation(ctx, "fetch_history", func() error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			records, err = c.fetch(ctx, q)
			return err
		})
	})
	if stderrors.Is(err, circuitbreaker.ErrOpen) {
		return nil, dasherrors.NewStandardError(dasherrors.ErrorCodeServiceUnavailable, "history API unavailable", nil)
	}
	return records, err
}

func (c *HistoryClient) fetch(ctx context.Context, q HistoryQuery) ([]types.MetricRecord, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, dasherrors.NewValidationError("history_url", err.Error(), c.baseURL)
	}
	params := u.Query()
	if q.EndpointID != "" {
		params.Set("endpointId", q.EndpointID)
	}
	if !q.Start.IsZero() {
		params.Set("start", q.Start.UTC().Format(time.RFC3339Nano))
	}
	if !q.End.IsZero() {
		params.Set("end", q.End.UTC().Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	u.RawQuery = params.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, dasherrors.NewInternalError("build history request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHistoryBody))
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, dasherrors.NewTransportError("fetch history",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	records, skipped, err := DecodeMessage(body)
	if err != nil {
		return nil, dasherrors.NewTransportError("decode history", err)
	}
	for _, rerr := range skipped {
		c.logger.Warn("Skipping malformed history record", "index", rerr.Index, "error", rerr.Err)
	}
	return records, nil
}

// classify separates deadline expiry from other network failures
func (c *HistoryClient) classify(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dasherrors.NewTimeoutError("fetch history", c.timeout, err)
	}
	return dasherrors.NewTransportError("fetch history", err)
}
