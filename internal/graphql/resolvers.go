package graphql

import (
	"context"
	"sort"
	"time"

	"gql-dashboard/internal/analytics"
	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/storage"
	"gql-dashboard/pkg/types"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
)

// codedError carries the dashboard error code into the GraphQL error
// extensions
type codedError struct {
	*dasherrors.StandardError
}

func (e codedError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Code())}
}

func resolverError(err error) error {
	if err == nil {
		return nil
	}
	return codedError{dasherrors.AsStandard(err)}
}

func contextOf(p graphql.ResolveParams) context.Context {
	if p.Context == nil {
		return context.Background()
	}
	return p.Context
}

func (s *Schema) activeAlertsResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Engine.GetActiveAlerts(), nil
	}
}

func (s *Schema) alertResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		alert, err := s.deps.Engine.GetAlert(getStringOrDefault(p.Args, "id", ""))
		if err != nil {
			return nil, resolverError(err)
		}
		return alert, nil
	}
}

func (s *Schema) alertHistoryResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Engine.GetAlertHistory(getIntOrDefault(p.Args, "limit", 100)), nil
	}
}

func (s *Schema) alertStatisticsResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Engine.GetAlertStatistics(), nil
	}
}

func (s *Schema) rulesResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Engine.GetRules(), nil
	}
}

func (s *Schema) ruleResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rule, err := s.deps.Engine.GetRule(getStringOrDefault(p.Args, "id", ""))
		if err != nil {
			return nil, resolverError(err)
		}
		return rule, nil
	}
}

func (s *Schema) kpisResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Realtime.KPIs(), nil
	}
}

func (s *Schema) connectionStatusResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return s.deps.Realtime.Status(), nil
	}
}

// metricsResolver returns the newest limit points of the selection in time order
func (s *Schema) metricsResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		selected := s.selectMetrics(p.Args)
		limit := getIntOrDefault(p.Args, "limit", 100)
		if limit > 0 && len(selected) > limit {
			selected = selected[len(selected)-limit:]
		}
		return selected, nil
	}
}

func (s *Schema) percentilesResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		result, err := s.deps.Performance.CalculatePercentiles(s.selectMetrics(p.Args), fieldArg(p.Args))
		if err != nil {
			return nil, resolverError(err)
		}
		return result, nil
	}
}

func (s *Schema) trendResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		result, err := s.deps.Performance.CalculatePerformanceTrend(s.selectMetrics(p.Args), fieldArg(p.Args))
		if err != nil {
			return nil, resolverError(err)
		}
		return result, nil
	}
}

func (s *Schema) aggregatesResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		window := analytics.Window(getStringOrDefault(p.Args, "window", "hour"))
		result, err := s.deps.Performance.AggregateByTimeWindow(s.selectMetrics(p.Args), window)
		if err != nil {
			return nil, resolverError(err)
		}
		return result, nil
	}
}

func (s *Schema) anomaliesResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		result, err := s.deps.Performance.DetectAnomalies(s.selectMetrics(p.Args), fieldArg(p.Args))
		if err != nil {
			return nil, resolverError(err)
		}
		return result, nil
	}
}

func (s *Schema) drillDownResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		start, _ := p.Args["start"].(time.Time)
		end, _ := p.Args["end"].(time.Time)
		if end.Before(start) {
			return nil, resolverError(dasherrors.NewValidationError("end", "must not be before start", end))
		}
		return s.deps.Series.GenerateDrillDownReport(s.selectMetrics(p.Args), start, end), nil
	}
}

func (s *Schema) queryHistoryResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if s.deps.History == nil {
			return nil, resolverError(historyUnavailable())
		}
		entries, err := s.deps.History.List(contextOf(p), storage.HistoryFilter{
			EndpointID:   getStringOrDefault(p.Args, "endpointId", ""),
			FavoriteOnly: getBoolOrDefault(p.Args, "favoriteOnly", false),
			Limit:        getIntOrDefault(p.Args, "limit", 50),
			Offset:       getIntOrDefault(p.Args, "offset", 0),
		})
		if err != nil {
			return nil, resolverError(err)
		}
		return entries, nil
	}
}

// ingestMetricsResolver feeds a batch through the realtime service exactly as
// a stream message would be
func (s *Schema) ingestMetricsResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		raw, _ := p.Args["metrics"].([]interface{})
		batch := make([]types.MetricRecord, 0, len(raw))
		for _, item := range raw {
			batch = append(batch, metricFromInput(item))
		}
		return s.deps.Realtime.Submit(batch), nil
	}
}

func (s *Schema) acknowledgeAlertResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		alert, err := s.deps.Engine.AcknowledgeAlert(
			getStringOrDefault(p.Args, "id", ""),
			getStringOrDefault(p.Args, "userId", ""),
		)
		if err != nil {
			return nil, resolverError(err)
		}
		return alert, nil
	}
}

func (s *Schema) createRuleResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input := p.Args["input"]
		rule := types.AlertRule{
			ID:         getStringOrDefault(input, "id", ""),
			Name:       getStringOrDefault(input, "name", ""),
			EndpointID: getStringOrDefault(input, "endpointId", ""),
			Condition: types.Condition{
				Metric:    types.MetricField(getStringOrDefault(input, "metric", "")),
				Operator:  types.Operator(getStringOrDefault(input, "operator", "")),
				Threshold: getFloatOrDefault(input, "threshold", 0),
				Duration:  time.Duration(getIntOrDefault(input, "durationMs", 0)) * time.Millisecond,
			},
			Severity: types.Severity(getStringOrDefault(input, "severity", "")),
			Enabled:  getBoolOrDefault(input, "enabled", true),
		}
		created, err := s.deps.Engine.AddRule(rule)
		if err != nil {
			return nil, resolverError(err)
		}
		return created, nil
	}
}

func (s *Schema) updateRuleResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, _ := p.Args["input"].(map[string]interface{})
		var update types.RuleUpdate
		if v, ok := input["name"].(string); ok {
			update.Name = &v
		}
		if v, ok := input["endpointId"].(string); ok {
			update.EndpointID = &v
		}
		if v, ok := input["metric"].(string); ok {
			metric := types.MetricField(v)
			update.Metric = &metric
		}
		if v, ok := input["operator"].(string); ok {
			op := types.Operator(v)
			update.Operator = &op
		}
		if v, ok := input["threshold"].(float64); ok {
			update.Threshold = &v
		}
		if v, ok := input["durationMs"].(int); ok {
			d := time.Duration(v) * time.Millisecond
			update.Duration = &d
		}
		if v, ok := input["severity"].(string); ok {
			sev := types.Severity(v)
			update.Severity = &sev
		}
		if v, ok := input["enabled"].(bool); ok {
			update.Enabled = &v
		}

		rule, err := s.deps.Engine.UpdateRule(getStringOrDefault(p.Args, "id", ""), update)
		if err != nil {
			return nil, resolverError(err)
		}
		return rule, nil
	}
}

func (s *Schema) deleteRuleResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if err := s.deps.Engine.DeleteRule(getStringOrDefault(p.Args, "id", "")); err != nil {
			return false, resolverError(err)
		}
		return true, nil
	}
}

func (s *Schema) saveQueryResolver() graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if s.deps.History == nil {
			return nil, resolverError(historyUnavailable())
		}
		input := p.Args["input"]
		entry, err := s.deps.History.Add(contextOf(p), storage.HistoryEntry{
			EndpointID:    getStringOrDefault(input, "endpointId", ""),
			Name:          getStringOrDefault(input, "name", ""),
			Query:         getStringOrDefault(input, "query", ""),
			OperationName: getStringOrDefault(input, "operationName", ""),
			Favorite:      getBoolOrDefault(input, "favorite", false),
		})
		if err != nil {
			return nil, resolverError(err)
		}
		return entry, nil
	}
}

func conditionDurationResolver(p graphql.ResolveParams) (interface{}, error) {
	switch c := p.Source.(type) {
	case types.Condition:
		return int(c.Duration.Milliseconds()), nil
	case *types.Condition:
		return int(c.Duration.Milliseconds()), nil
	}
	return nil, nil
}

type keyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func byEndpointResolver(p graphql.ResolveParams) (interface{}, error) {
	stats, ok := statisticsOf(p.Source)
	if !ok {
		return nil, nil
	}
	out := make([]keyCount, 0, len(stats.ByEndpoint))
	for endpoint, n := range stats.ByEndpoint {
		out = append(out, keyCount{Key: endpoint, Count: n})
	}
	sortCounts(out)
	return out, nil
}

func bySeverityResolver(p graphql.ResolveParams) (interface{}, error) {
	stats, ok := statisticsOf(p.Source)
	if !ok {
		return nil, nil
	}
	out := make([]keyCount, 0, len(stats.BySeverity))
	for severity, n := range stats.BySeverity {
		out = append(out, keyCount{Key: string(severity), Count: n})
	}
	sortCounts(out)
	return out, nil
}

func statisticsOf(source interface{}) (types.AlertStatistics, bool) {
	switch v := source.(type) {
	case types.AlertStatistics:
		return v, true
	case *types.AlertStatistics:
		return *v, true
	}
	return types.AlertStatistics{}, false
}

// sortCounts orders by count descending, then key
func sortCounts(counts []keyCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Key < counts[j].Key
	})
}

// selectMetrics filters the buffered series by the optional endpointId,
// start and end arguments
func (s *Schema) selectMetrics(args map[string]interface{}) []types.MetricRecord {
	endpoint := getStringOrDefault(args, "endpointId", "")
	start, hasStart := args["start"].(time.Time)
	end, hasEnd := args["end"].(time.Time)

	data := s.deps.Series.DataPoints()
	out := make([]types.MetricRecord, 0, len(data))
	for _, m := range data {
		if endpoint != "" && m.EndpointID != endpoint {
			continue
		}
		if hasStart && m.Timestamp.Before(start) {
			continue
		}
		if hasEnd && m.Timestamp.After(end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func fieldArg(args map[string]interface{}) types.MetricField {
	return types.MetricField(getStringOrDefault(args, "field", string(types.FieldExecutionTime)))
}

func metricFromInput(item interface{}) types.MetricRecord {
	m := types.MetricRecord{
		ID:            getStringOrDefault(item, "id", ""),
		EndpointID:    getStringOrDefault(item, "endpointId", ""),
		Query:         getStringOrDefault(item, "query", ""),
		OperationName: getStringOrDefault(item, "operationName", ""),
		ExecutionTime: getFloatOrDefault(item, "executionTime", 0),
		ResponseSize:  int64(getIntOrDefault(item, "responseSize", 0)),
		Success:       getBoolOrDefault(item, "success", true),
		StatusCode:    getIntOrDefault(item, "statusCode", 0),
		Errors:        getStringArrayOrDefault(item, "errors"),
	}
	if fields, ok := item.(map[string]interface{}); ok {
		if ts, ok := fields["timestamp"].(time.Time); ok {
			m.Timestamp = ts
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return m
}

func historyUnavailable() error {
	return dasherrors.NewStandardError(dasherrors.ErrorCodeServiceUnavailable, "query history storage is disabled", nil)
}

// Helper functions for extracting values with defaults
func getStringOrDefault(m interface{}, key string, defaultValue string) string {
	if mapValue, ok := m.(map[string]interface{}); ok {
		if value, exists := mapValue[key]; exists && value != nil {
			if strValue, ok := value.(string); ok {
				return strValue
			}
		}
	}
	return defaultValue
}

func getIntOrDefault(m interface{}, key string, defaultValue int) int {
	if mapValue, ok := m.(map[string]interface{}); ok {
		if value, exists := mapValue[key]; exists && value != nil {
			if intValue, ok := value.(int); ok {
				return intValue
			}
		}
	}
	return defaultValue
}

func getFloatOrDefault(m interface{}, key string, defaultValue float64) float64 {
	if mapValue, ok := m.(map[string]interface{}); ok {
		if value, exists := mapValue[key]; exists && value != nil {
			switch v := value.(type) {
			case float64:
				return v
			case int:
				return float64(v)
			}
		}
	}
	return defaultValue
}

func getBoolOrDefault(m interface{}, key string, defaultValue bool) bool {
	if mapValue, ok := m.(map[string]interface{}); ok {
		if value, exists := mapValue[key]; exists && value != nil {
			if boolValue, ok := value.(bool); ok {
				return boolValue
			}
		}
	}
	return defaultValue
}

func getStringArrayOrDefault(m interface{}, key string) []string {
	mapValue, ok := m.(map[string]interface{})
	if !ok {
		return nil
	}

	value, exists := mapValue[key]
	if !exists || value == nil {
		return nil
	}

	arr, ok := value.([]interface{})
	if !ok {
		return nil
	}

	result := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok {
			result = append(result, str)
		}
	}
	return result
}
