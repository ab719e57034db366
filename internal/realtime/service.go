// Package realtime bridges the live metric stream to the analytics core. It
// tracks the connection state, buffers metrics while the stream is down,
// replays them on reconnect and keeps the dashboard KPIs current.
package realtime

import (
	"context"
	"math"
	"sync"
	"time"

	"gql-dashboard/internal/alerting"
	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/events"
	"gql-dashboard/internal/logging"
	"gql-dashboard/internal/retry"
	"gql-dashboard/internal/timeseries"
	"gql-dashboard/pkg/types"
)

// Config tunes the service
type Config struct {
	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	OfflineBufferSize    int
	KPIWindow            time.Duration
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		InitialBackoff:       time.Second,
		MaxBackoff:           30 * time.Second,
		OfflineBufferSize:    1000,
		KPIWindow:            time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.OfflineBufferSize <= 0 {
		c.OfflineBufferSize = def.OfflineBufferSize
	}
	if c.KPIWindow <= 0 {
		c.KPIWindow = def.KPIWindow
	}
	return c
}

// IngestResult reports what happened to a submitted batch
type IngestResult struct {
	Accepted     int                      `json:"accepted"`
	Rejected     int                      `json:"rejected"`
	Buffered     int                      `json:"buffered"`
	Completeness float64                  `json:"completeness"`
	Outliers     int                      `json:"outliers"`
	Alerts       []types.Alert            `json:"alerts"`
	StreamAlerts []timeseries.StreamAlert `json:"streamAlerts"`
}

// Status is a snapshot of the service
type Status struct {
	State          types.ConnectionState `json:"state"`
	StreamEnabled  bool                  `json:"streamEnabled"`
	Buffered       int                   `json:"buffered"`
	DroppedOffline int                   `json:"droppedOffline"`
	DataPoints     int                   `json:"dataPoints"`
	ActiveAlerts   int                   `json:"activeAlerts"`
}

// Service owns the live connection and feeds the analytics core
type Service struct {
	config     Config
	transport  Transport
	series     *timeseries.Analytics
	engine     *alerting.Engine
	dispatcher *events.Dispatcher
	logger     logging.Logger
	now        func() time.Time

	mu             sync.Mutex
	state          types.ConnectionState
	stream         Stream
	cancel         context.CancelFunc
	offline        []types.MetricRecord
	droppedOffline int
	wg             sync.WaitGroup
}

// NewService wires the service. transport may be nil, in which case metrics
// are only submitted through Submit and are never buffered.
func NewService(config Config, transport Transport, series *timeseries.Analytics, engine *alerting.Engine, dispatcher *events.Dispatcher, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}
	return &Service{
		config:     config.withDefaults(),
		transport:  transport,
		series:     series,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     logger.WithComponent("realtime"),
		now:        time.Now,
		state:      types.StateDisconnected,
	}
}

// State returns the current connection state
func (s *Service) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the service
func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		State:          s.state,
		StreamEnabled:  s.transport != nil,
		Buffered:       len(s.offline),
		DroppedOffline: s.droppedOffline,
	}
	s.mu.Unlock()
	st.DataPoints = s.series.Len()
	st.ActiveAlerts = s.engine.ActiveAlertCount()
	return st
}

// transition moves to state to and publishes the change
func (s *Service) transition(to types.ConnectionState, attempt int) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	s.logger.Info("Stream state changed", "from", string(from), "to", string(to), "attempt", attempt)
	s.dispatcher.Publish(events.ConnectionChanged{From: from, To: to, Attempt: attempt, At: s.now()})
}

// Connect opens the live stream, retrying with backoff up to the configured
// ceiling. After the ceiling the service stays disconnected until Connect is
// called again.
func (s *Service) Connect(ctx context.Context) error {
	if s.transport == nil {
		return dasherrors.NewValidationError("stream_url", "no live stream configured", nil)
	}

	s.mu.Lock()
	if s.state != types.StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.transition(types.StateConnecting, 0)
	stream, err := s.dial(ctx, types.StateConnecting)
	if err != nil {
		cancel()
		s.transition(types.StateDisconnected, s.config.MaxReconnectAttempts)
		return err
	}
	s.attach(loopCtx, stream)
	return nil
}

// Disconnect closes the stream and stops the read loop
func (s *Service) Disconnect() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	s.wg.Wait()
	s.transition(types.StateDisconnected, 0)
}

func (s *Service) dial(ctx context.Context, pending types.ConnectionState) (Stream, error) {
	cfg := retry.ReconnectConfig(s.config.MaxReconnectAttempts, s.config.InitialBackoff, s.config.MaxBackoff)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Stream connect failed, retrying",
			"attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		s.transition(types.StateReconnecting, attempt)
	}

	var stream Stream
	result := retry.New(cfg).Do(ctx, func(ctx context.Context) error {
		st, err := s.transport.Connect(ctx)
		if err != nil {
			s.dispatcher.Publish(events.NewTransportError("connect", err, s.now()))
			return err
		}
		stream = st
		return nil
	})
	if result.Err != nil {
		s.logger.Error("Stream connect gave up", "attempts", result.Attempts, "state", string(pending), "error", result.Err)
		return nil, dasherrors.NewTransportError("connect", result.Err)
	}
	return stream, nil
}

// attach installs stream and starts its read loop unless Disconnect won the
// race, in which case the stream is closed
func (s *Service) attach(loopCtx context.Context, stream Stream) {
	s.mu.Lock()
	if loopCtx.Err() != nil {
		s.mu.Unlock()
		_ = stream.Close()
		return
	}
	s.stream = stream
	s.wg.Add(1)
	s.mu.Unlock()

	s.transition(types.StateConnected, 0)
	s.replayOffline()
	go s.readLoop(loopCtx, stream)
}

func (s *Service) readLoop(ctx context.Context, stream Stream) {
	defer s.wg.Done()

	for {
		data, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.dispatcher.Publish(events.NewTransportError("read", err, s.now()))
			_ = stream.Close()
			s.mu.Lock()
			if s.stream == stream {
				s.stream = nil
			}
			s.mu.Unlock()

			s.transition(types.StateReconnecting, 0)
			next, err := s.dial(ctx, types.StateReconnecting)
			if err != nil {
				if ctx.Err() == nil {
					s.transition(types.StateDisconnected, s.config.MaxReconnectAttempts)
				}
				return
			}
			s.attach(ctx, next)
			return
		}

		records, skipped, err := DecodeMessage(data)
		if err != nil {
			s.logger.Warn("Dropping malformed stream message", "error", err)
			s.dispatcher.Publish(events.NewTransportError("decode", err, s.now()))
			continue
		}
		for _, rerr := range skipped {
			s.logger.Warn("Skipping malformed stream record", "index", rerr.Index, "error", rerr.Err)
			s.dispatcher.Publish(events.NewTransportError("decode", rerr, s.now()))
		}
		if len(records) > 0 {
			s.process(records)
		}
	}
}

// Submit feeds a batch into the analytics core. While a configured stream
// is not connected the batch is buffered and replayed on reconnect.
func (s *Service) Submit(batch []types.MetricRecord) IngestResult {
	if len(batch) == 0 {
		return IngestResult{Alerts: []types.Alert{}, StreamAlerts: []timeseries.StreamAlert{}}
	}

	s.mu.Lock()
	if s.transport != nil && s.state != types.StateConnected {
		s.bufferLocked(batch)
		s.mu.Unlock()
		return IngestResult{Buffered: len(batch), Alerts: []types.Alert{}, StreamAlerts: []timeseries.StreamAlert{}}
	}
	s.mu.Unlock()

	return s.process(batch)
}

// bufferLocked appends to the offline FIFO, evicting the oldest records
// beyond capacity
func (s *Service) bufferLocked(batch []types.MetricRecord) {
	s.offline = append(s.offline, batch...)
	if over := len(s.offline) - s.config.OfflineBufferSize; over > 0 {
		s.offline = append([]types.MetricRecord(nil), s.offline[over:]...)
		s.droppedOffline += over
		s.logger.Warn("Offline buffer full, dropped oldest metrics", "dropped", over)
	}
}

func (s *Service) replayOffline() {
	s.mu.Lock()
	pending := s.offline
	s.offline = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	s.logger.Info("Replaying buffered metrics", "count", len(pending))
	s.process(pending)
}

// process adds valid records to the buffer, evaluates both alert paths and
// publishes the data and KPI updates
func (s *Service) process(batch []types.MetricRecord) IngestResult {
	stream := s.series.ProcessStreamingData(batch)
	result := IngestResult{
		Completeness: stream.Completeness,
		Outliers:     stream.OutlierCount,
		Alerts:       []types.Alert{},
		StreamAlerts: []timeseries.StreamAlert{},
	}

	valid := make([]types.MetricRecord, 0, len(batch))
	for _, m := range batch {
		if err := s.series.AddDataPoint(m); err != nil {
			result.Rejected++
			continue
		}
		valid = append(valid, m)
	}
	result.Accepted = len(valid)
	if len(valid) == 0 {
		return result
	}

	result.StreamAlerts = s.series.ProcessStreamForAlerts(valid)
	for _, a := range result.StreamAlerts {
		s.logger.Warn("Stream alert fired", "rule_id", a.RuleID, "endpoint_id", a.EndpointID, "message", a.Message)
	}
	result.Alerts = s.engine.EvaluateWindow(s.series.DataPoints(), valid)

	now := s.now()
	s.dispatcher.Publish(events.DataUpdated{Metrics: valid, At: now})
	s.dispatcher.Publish(events.KPIUpdated{KPI: s.KPIs(), At: now})
	return result
}

// KPIs rolls up the buffered metrics inside the KPI window ending at the
// newest record
func (s *Service) KPIs() types.KPISnapshot {
	snapshot := types.KPISnapshot{
		Window:       s.config.KPIWindow.String(),
		UpdatedAt:    s.now(),
		ActiveAlerts: s.engine.ActiveAlertCount(),
	}

	points := s.series.DataPoints()
	if len(points) == 0 {
		return snapshot
	}
	latest := points[0].Timestamp
	for _, m := range points[1:] {
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	cutoff := latest.Add(-s.config.KPIWindow)

	var times []float64
	earliest := latest
	failed := 0
	for _, m := range points {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		times = append(times, m.ExecutionTime)
		if m.Failed() {
			failed++
		}
		if m.Timestamp.Before(earliest) {
			earliest = m.Timestamp
		}
	}

	total := len(times)
	snapshot.TotalQueries = total
	snapshot.ErrorRate = float64(failed) / float64(total)
	snapshot.SuccessRate = 1 - snapshot.ErrorRate
	snapshot.AvgResponseTime = analytics.Mean(times)
	snapshot.P95ResponseTime = analytics.Percentile(analytics.SortedCopy(times), 0.95)
	snapshot.QueriesPerMinute = float64(total) / math.Max(latest.Sub(earliest).Minutes(), 1)
	return snapshot
}

// RefreshKPIs computes and publishes the KPIs
func (s *Service) RefreshKPIs() types.KPISnapshot {
	kpi := s.KPIs()
	s.dispatcher.Publish(events.KPIUpdated{KPI: kpi, At: kpi.UpdatedAt})
	return kpi
}

// RunKPITicker republishes the KPIs every interval until ctx is done
func (s *Service) RunKPITicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RefreshKPIs()
		case <-ctx.Done():
			return
		}
	}
}
