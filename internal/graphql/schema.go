// Package graphql exposes the dashboard's alerts, rules, KPIs and analytics
// as a GraphQL API
package graphql

import (
	"fmt"

	"gql-dashboard/internal/alerting"
	"gql-dashboard/internal/analytics"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/internal/storage"
	"gql-dashboard/internal/timeseries"

	"github.com/graphql-go/graphql"
)

// Dependencies are the components the resolvers read from. History is
// optional; the query history fields return an error without it.
type Dependencies struct {
	Engine      *alerting.Engine
	Series      *timeseries.Analytics
	Performance *analytics.PerformanceAnalytics
	Realtime    *realtime.Service
	History     *storage.HistoryStore
}

// Schema holds the GraphQL schema
type Schema struct {
	schema graphql.Schema
	deps   Dependencies
}

// NewSchema creates the dashboard GraphQL schema
func NewSchema(deps Dependencies) (*Schema, error) {
	if deps.Engine == nil || deps.Series == nil || deps.Performance == nil || deps.Realtime == nil {
		return nil, fmt.Errorf("graphql schema requires engine, series, performance analytics and realtime service")
	}
	s := &Schema{deps: deps}

	metricType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Metric",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"endpointId":    &graphql.Field{Type: graphql.String},
			"query":         &graphql.Field{Type: graphql.String},
			"operationName": &graphql.Field{Type: graphql.String},
			"executionTime": &graphql.Field{Type: graphql.Float},
			"responseSize":  &graphql.Field{Type: graphql.Int},
			"timestamp":     &graphql.Field{Type: graphql.DateTime},
			"success":       &graphql.Field{Type: graphql.Boolean},
			"statusCode":    &graphql.Field{Type: graphql.Int},
			"errors":        &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	alertType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Alert",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"ruleId":         &graphql.Field{Type: graphql.String},
			"ruleName":       &graphql.Field{Type: graphql.String},
			"endpointId":     &graphql.Field{Type: graphql.String},
			"severity":       &graphql.Field{Type: graphql.String},
			"message":        &graphql.Field{Type: graphql.String},
			"status":         &graphql.Field{Type: graphql.String},
			"triggeredAt":    &graphql.Field{Type: graphql.DateTime},
			"acknowledgedAt": &graphql.Field{Type: graphql.DateTime},
			"acknowledgedBy": &graphql.Field{Type: graphql.String},
			"resolvedAt":     &graphql.Field{Type: graphql.DateTime},
			"metric":         &graphql.Field{Type: graphql.String},
			"threshold":      &graphql.Field{Type: graphql.Float},
			"values":         &graphql.Field{Type: graphql.NewList(graphql.Float)},
		},
	})

	conditionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Condition",
		Fields: graphql.Fields{
			"metric":    &graphql.Field{Type: graphql.String},
			"operator":  &graphql.Field{Type: graphql.String},
			"threshold": &graphql.Field{Type: graphql.Float},
			"durationMs": &graphql.Field{
				Type:    graphql.Int,
				Resolve: conditionDurationResolver,
			},
		},
	})

	ruleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AlertRule",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"endpointId": &graphql.Field{Type: graphql.String},
			"condition":  &graphql.Field{Type: conditionType},
			"severity":   &graphql.Field{Type: graphql.String},
			"enabled":    &graphql.Field{Type: graphql.Boolean},
			"createdAt":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	countType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Count",
		Fields: graphql.Fields{
			"key":   &graphql.Field{Type: graphql.String},
			"count": &graphql.Field{Type: graphql.Int},
		},
	})

	alertStatisticsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AlertStatistics",
		Fields: graphql.Fields{
			"total":        &graphql.Field{Type: graphql.Int},
			"active":       &graphql.Field{Type: graphql.Int},
			"acknowledged": &graphql.Field{Type: graphql.Int},
			"resolved":     &graphql.Field{Type: graphql.Int},
			"byEndpoint": &graphql.Field{
				Type:    graphql.NewList(countType),
				Resolve: byEndpointResolver,
			},
			"bySeverity": &graphql.Field{
				Type:    graphql.NewList(countType),
				Resolve: bySeverityResolver,
			},
		},
	})

	kpiType := graphql.NewObject(graphql.ObjectConfig{
		Name: "KPISnapshot",
		Fields: graphql.Fields{
			"totalQueries":     &graphql.Field{Type: graphql.Int},
			"successRate":      &graphql.Field{Type: graphql.Float},
			"errorRate":        &graphql.Field{Type: graphql.Float},
			"avgResponseTime":  &graphql.Field{Type: graphql.Float},
			"p95ResponseTime":  &graphql.Field{Type: graphql.Float},
			"queriesPerMinute": &graphql.Field{Type: graphql.Float},
			"activeAlerts":     &graphql.Field{Type: graphql.Int},
			"window":           &graphql.Field{Type: graphql.String},
			"updatedAt":        &graphql.Field{Type: graphql.DateTime},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ConnectionStatus",
		Fields: graphql.Fields{
			"state":          &graphql.Field{Type: graphql.String},
			"streamEnabled":  &graphql.Field{Type: graphql.Boolean},
			"buffered":       &graphql.Field{Type: graphql.Int},
			"droppedOffline": &graphql.Field{Type: graphql.Int},
			"dataPoints":     &graphql.Field{Type: graphql.Int},
			"activeAlerts":   &graphql.Field{Type: graphql.Int},
		},
	})

	percentilesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Percentiles",
		Fields: graphql.Fields{
			"count": &graphql.Field{Type: graphql.Int},
			"p50":   &graphql.Field{Type: graphql.Float},
			"p90":   &graphql.Field{Type: graphql.Float},
			"p95":   &graphql.Field{Type: graphql.Float},
			"p99":   &graphql.Field{Type: graphql.Float},
		},
	})

	trendType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trend",
		Fields: graphql.Fields{
			"field":         &graphql.Field{Type: graphql.String},
			"direction":     &graphql.Field{Type: graphql.String},
			"slope":         &graphql.Field{Type: graphql.Float},
			"confidence":    &graphql.Field{Type: graphql.Float},
			"percentChange": &graphql.Field{Type: graphql.Float},
			"startValue":    &graphql.Field{Type: graphql.Float},
			"endValue":      &graphql.Field{Type: graphql.Float},
			"dataPoints":    &graphql.Field{Type: graphql.Int},
		},
	})

	aggregateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AggregatedWindow",
		Fields: graphql.Fields{
			"start":             &graphql.Field{Type: graphql.DateTime},
			"window":            &graphql.Field{Type: graphql.String},
			"endpointId":        &graphql.Field{Type: graphql.String},
			"count":             &graphql.Field{Type: graphql.Int},
			"errorCount":        &graphql.Field{Type: graphql.Int},
			"meanExecutionTime": &graphql.Field{Type: graphql.Float},
			"meanResponseSize":  &graphql.Field{Type: graphql.Float},
		},
	})

	anomalyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Anomaly",
		Fields: graphql.Fields{
			"metricId":       &graphql.Field{Type: graphql.String},
			"endpointId":     &graphql.Field{Type: graphql.String},
			"timestamp":      &graphql.Field{Type: graphql.DateTime},
			"value":          &graphql.Field{Type: graphql.Float},
			"expected":       &graphql.Field{Type: graphql.Float},
			"zScore":         &graphql.Field{Type: graphql.Float},
			"deviationScore": &graphql.Field{Type: graphql.Float},
			"severity":       &graphql.Field{Type: graphql.String},
		},
	})

	selectionStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SelectionStatistics",
		Fields: graphql.Fields{
			"count":            &graphql.Field{Type: graphql.Int},
			"mean":             &graphql.Field{Type: graphql.Float},
			"median":           &graphql.Field{Type: graphql.Float},
			"stdDev":           &graphql.Field{Type: graphql.Float},
			"min":              &graphql.Field{Type: graphql.Float},
			"max":              &graphql.Field{Type: graphql.Float},
			"p95":              &graphql.Field{Type: graphql.Float},
			"p99":              &graphql.Field{Type: graphql.Float},
			"errorRate":        &graphql.Field{Type: graphql.Float},
			"meanResponseSize": &graphql.Field{Type: graphql.Float},
		},
	})

	queryBreakdownType := graphql.NewObject(graphql.ObjectConfig{
		Name: "QueryBreakdown",
		Fields: graphql.Fields{
			"identity":      &graphql.Field{Type: graphql.String},
			"operationType": &graphql.Field{Type: graphql.String},
			"operationName": &graphql.Field{Type: graphql.String},
			"count":         &graphql.Field{Type: graphql.Int},
			"share":         &graphql.Field{Type: graphql.Float},
			"stats":         &graphql.Field{Type: selectionStatsType},
		},
	})

	hourBreakdownType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HourBreakdown",
		Fields: graphql.Fields{
			"hour":      &graphql.Field{Type: graphql.DateTime},
			"count":     &graphql.Field{Type: graphql.Int},
			"avgTime":   &graphql.Field{Type: graphql.Float},
			"errorRate": &graphql.Field{Type: graphql.Float},
		},
	})

	drillDownType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DrillDownReport",
		Fields: graphql.Fields{
			"start":      &graphql.Field{Type: graphql.DateTime},
			"end":        &graphql.Field{Type: graphql.DateTime},
			"totals":     &graphql.Field{Type: selectionStatsType},
			"endpoints":  &graphql.Field{Type: graphql.NewList(graphql.String)},
			"topQueries": &graphql.Field{Type: graphql.NewList(queryBreakdownType)},
			"byQuery":    &graphql.Field{Type: graphql.NewList(queryBreakdownType)},
			"byHour":     &graphql.Field{Type: graphql.NewList(hourBreakdownType)},
		},
	})

	streamAlertType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StreamAlert",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"ruleId":     &graphql.Field{Type: graphql.String},
			"ruleName":   &graphql.Field{Type: graphql.String},
			"endpointId": &graphql.Field{Type: graphql.String},
			"severity":   &graphql.Field{Type: graphql.String},
			"message":    &graphql.Field{Type: graphql.String},
			"threshold":  &graphql.Field{Type: graphql.Float},
			"values":     &graphql.Field{Type: graphql.NewList(graphql.Float)},
			"timestamp":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	ingestResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "IngestResult",
		Fields: graphql.Fields{
			"accepted":     &graphql.Field{Type: graphql.Int},
			"rejected":     &graphql.Field{Type: graphql.Int},
			"buffered":     &graphql.Field{Type: graphql.Int},
			"completeness": &graphql.Field{Type: graphql.Float},
			"outliers":     &graphql.Field{Type: graphql.Int},
			"alerts":       &graphql.Field{Type: graphql.NewList(alertType)},
			"streamAlerts": &graphql.Field{Type: graphql.NewList(streamAlertType)},
		},
	})

	historyEntryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoryEntry",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"endpointId":    &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"query":         &graphql.Field{Type: graphql.String},
			"operationName": &graphql.Field{Type: graphql.String},
			"favorite":      &graphql.Field{Type: graphql.Boolean},
			"usageCount":    &graphql.Field{Type: graphql.Int},
			"createdAt":     &graphql.Field{Type: graphql.DateTime},
			"lastUsedAt":    &graphql.Field{Type: graphql.DateTime},
		},
	})

	// Input types
	metricInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "MetricInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":            &graphql.InputObjectFieldConfig{Type: graphql.String},
			"endpointId":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"query":         &graphql.InputObjectFieldConfig{Type: graphql.String},
			"operationName": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"executionTime": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"responseSize":  &graphql.InputObjectFieldConfig{Type: graphql.Int, DefaultValue: 0},
			"timestamp":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.DateTime)},
			"success":       &graphql.InputObjectFieldConfig{Type: graphql.Boolean, DefaultValue: true},
			"statusCode":    &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"errors":        &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.String)},
		},
	})

	ruleInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "AlertRuleInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":         &graphql.InputObjectFieldConfig{Type: graphql.String},
			"name":       &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"endpointId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"metric":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"operator":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"threshold":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"durationMs": &graphql.InputObjectFieldConfig{Type: graphql.Int, DefaultValue: 0},
			"severity":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"enabled":    &graphql.InputObjectFieldConfig{Type: graphql.Boolean, DefaultValue: true},
		},
	})

	ruleUpdateInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "AlertRuleUpdateInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name":       &graphql.InputObjectFieldConfig{Type: graphql.String},
			"endpointId": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"metric":     &graphql.InputObjectFieldConfig{Type: graphql.String},
			"operator":   &graphql.InputObjectFieldConfig{Type: graphql.String},
			"threshold":  &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"durationMs": &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"severity":   &graphql.InputObjectFieldConfig{Type: graphql.String},
			"enabled":    &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
		},
	})

	historyInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "HistoryEntryInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"endpointId":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"name":          &graphql.InputObjectFieldConfig{Type: graphql.String},
			"query":         &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"operationName": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"favorite":      &graphql.InputObjectFieldConfig{Type: graphql.Boolean, DefaultValue: false},
		},
	})

	// Shared argument sets for the analytics fields
	selectionArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		args := graphql.FieldConfigArgument{
			"endpointId": &graphql.ArgumentConfig{Type: graphql.String},
			"start":      &graphql.ArgumentConfig{Type: graphql.DateTime},
			"end":        &graphql.ArgumentConfig{Type: graphql.DateTime},
		}
		for k, v := range extra {
			args[k] = v
		}
		return args
	}
	fieldArg := &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "executionTime"}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"activeAlerts": &graphql.Field{
				Type:        graphql.NewList(alertType),
				Description: "Unresolved alerts ordered by trigger time",
				Resolve:     s.activeAlertsResolver(),
			},
			"alert": &graphql.Field{
				Type: alertType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.alertResolver(),
			},
			"alertHistory": &graphql.Field{
				Type: graphql.NewList(alertType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: s.alertHistoryResolver(),
			},
			"alertStatistics": &graphql.Field{
				Type:    alertStatisticsType,
				Resolve: s.alertStatisticsResolver(),
			},
			"rules": &graphql.Field{
				Type:    graphql.NewList(ruleType),
				Resolve: s.rulesResolver(),
			},
			"rule": &graphql.Field{
				Type: ruleType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.ruleResolver(),
			},
			"kpis": &graphql.Field{
				Type:        kpiType,
				Description: "Dashboard KPIs over the configured window",
				Resolve:     s.kpisResolver(),
			},
			"connectionStatus": &graphql.Field{
				Type:    statusType,
				Resolve: s.connectionStatusResolver(),
			},
			"metrics": &graphql.Field{
				Type: graphql.NewList(metricType),
				Args: selectionArgs(graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				}),
				Resolve: s.metricsResolver(),
			},
			"percentiles": &graphql.Field{
				Type:    percentilesType,
				Args:    selectionArgs(graphql.FieldConfigArgument{"field": fieldArg}),
				Resolve: s.percentilesResolver(),
			},
			"trend": &graphql.Field{
				Type:    trendType,
				Args:    selectionArgs(graphql.FieldConfigArgument{"field": fieldArg}),
				Resolve: s.trendResolver(),
			},
			"aggregates": &graphql.Field{
				Type: graphql.NewList(aggregateType),
				Args: selectionArgs(graphql.FieldConfigArgument{
					"window": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "hour"},
				}),
				Resolve: s.aggregatesResolver(),
			},
			"anomalies": &graphql.Field{
				Type:    graphql.NewList(anomalyType),
				Args:    selectionArgs(graphql.FieldConfigArgument{"field": fieldArg}),
				Resolve: s.anomaliesResolver(),
			},
			"drillDown": &graphql.Field{
				Type: drillDownType,
				Args: graphql.FieldConfigArgument{
					"endpointId": &graphql.ArgumentConfig{Type: graphql.String},
					"start":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.DateTime)},
					"end":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.DateTime)},
				},
				Resolve: s.drillDownResolver(),
			},
			"queryHistory": &graphql.Field{
				Type: graphql.NewList(historyEntryType),
				Args: graphql.FieldConfigArgument{
					"endpointId":   &graphql.ArgumentConfig{Type: graphql.String},
					"favoriteOnly": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"limit":        &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
					"offset":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: s.queryHistoryResolver(),
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"ingestMetrics": &graphql.Field{
				Type: ingestResultType,
				Args: graphql.FieldConfigArgument{
					"metrics": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(metricInputType))),
					},
				},
				Resolve: s.ingestMetricsResolver(),
			},
			"acknowledgeAlert": &graphql.Field{
				Type: alertType,
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.acknowledgeAlertResolver(),
			},
			"createRule": &graphql.Field{
				Type: ruleType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(ruleInputType)},
				},
				Resolve: s.createRuleResolver(),
			},
			"updateRule": &graphql.Field{
				Type: ruleType,
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(ruleUpdateInputType)},
				},
				Resolve: s.updateRuleResolver(),
			},
			"deleteRule": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.deleteRuleResolver(),
			},
			"saveQuery": &graphql.Field{
				Type: historyEntryType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(historyInputType)},
				},
				Resolve: s.saveQueryResolver(),
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s.schema = schema
	return s, nil
}

// GetSchema returns the GraphQL schema
func (s *Schema) GetSchema() graphql.Schema {
	return s.schema
}
