package timeseries

import (
	"sort"
	"time"

	"gql-dashboard/pkg/types"
)

// QueryBreakdown summarizes the executions of one query identity
type QueryBreakdown struct {
	Identity      string              `json:"identity"`
	OperationType string              `json:"operationType"`
	OperationName string              `json:"operationName,omitempty"`
	Count         int                 `json:"count"`
	Share         float64             `json:"share"`
	Stats         SelectionStatistics `json:"stats"`
}

// HourBreakdown summarizes one UTC hour of the selection
type HourBreakdown struct {
	Hour      time.Time `json:"hour"`
	Count     int       `json:"count"`
	AvgTime   float64   `json:"avgTime"`
	ErrorRate float64   `json:"errorRate"`
}

// DrillDownReport is the detail view behind a selected chart range
type DrillDownReport struct {
	Start      time.Time           `json:"start"`
	End        time.Time           `json:"end"`
	Totals     SelectionStatistics `json:"totals"`
	Endpoints  []string            `json:"endpoints"`
	TopQueries []QueryBreakdown    `json:"topQueries"`
	ByQuery    []QueryBreakdown    `json:"byQuery"`
	ByHour     []HourBreakdown     `json:"byHour"`
}

// GenerateDrillDownReport breaks the metrics inside [start, end] down by
// query identity and by hour. Queries are ordered by count descending, then
// identity.
func (a *Analytics) GenerateDrillDownReport(metrics []types.MetricRecord, start, end time.Time) *DrillDownReport {
	selected := validSorted(a.FilterByTimeRange(metrics, start, end))
	report := &DrillDownReport{
		Start:      start,
		End:        end,
		Totals:     selectionStatistics(selected),
		Endpoints:  []string{},
		TopQueries: []QueryBreakdown{},
		ByQuery:    []QueryBreakdown{},
		ByHour:     []HourBreakdown{},
	}
	if len(selected) == 0 {
		return report
	}

	endpoints := make(map[string]bool)
	groups := make(map[string][]types.MetricRecord)
	analyses := make(map[string]struct{ opType, opName string })
	var hours []time.Time
	byHour := make(map[time.Time][]types.MetricRecord)

	for _, m := range selected {
		endpoints[m.EndpointID] = true

		an := a.analyzer.Analyze(m.Query)
		groups[an.Signature] = append(groups[an.Signature], m)
		if _, ok := analyses[an.Signature]; !ok {
			name := an.OperationName
			if name == "" {
				name = m.OperationName
			}
			analyses[an.Signature] = struct{ opType, opName string }{an.OperationType, name}
		}

		h := m.Timestamp.UTC().Truncate(time.Hour)
		if _, ok := byHour[h]; !ok {
			hours = append(hours, h)
		}
		byHour[h] = append(byHour[h], m)
	}

	for ep := range endpoints {
		report.Endpoints = append(report.Endpoints, ep)
	}
	sort.Strings(report.Endpoints)

	for id, group := range groups {
		info := analyses[id]
		report.ByQuery = append(report.ByQuery, QueryBreakdown{
			Identity:      id,
			OperationType: info.opType,
			OperationName: info.opName,
			Count:         len(group),
			Share:         float64(len(group)) / float64(len(selected)),
			Stats:         selectionStatistics(group),
		})
	}
	sort.Slice(report.ByQuery, func(i, j int) bool {
		qi, qj := report.ByQuery[i], report.ByQuery[j]
		if qi.Count != qj.Count {
			return qi.Count > qj.Count
		}
		return qi.Identity < qj.Identity
	})
	top := min(a.config.TopN, len(report.ByQuery))
	report.TopQueries = append(report.TopQueries, report.ByQuery[:top]...)

	// selected is time ordered so hours are already ascending
	for _, h := range hours {
		stats := selectionStatistics(byHour[h])
		report.ByHour = append(report.ByHour, HourBreakdown{
			Hour:      h,
			Count:     stats.Count,
			AvgTime:   stats.Mean,
			ErrorRate: stats.ErrorRate,
		})
	}
	return report
}
