// report prints an offline performance report for a JSON file of metric
// records: percentiles, trend, anomalies and the most frequent queries.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"gql-dashboard/internal/analytics"
	"gql-dashboard/internal/gqlquery"
	"gql-dashboard/internal/realtime"
	"gql-dashboard/internal/timeseries"
	"gql-dashboard/pkg/types"
)

func main() {
	var (
		file     = flag.String("file", "", "JSON file with one metric record, an array of records or a stream envelope")
		endpoint = flag.String("endpoint", "", "only report on this endpoint")
		field    = flag.String("field", string(types.FieldExecutionTime), "metric field for percentiles, trend and anomalies")
		top      = flag.Int("top", 5, "number of top queries to list")
		noColor  = flag.Bool("no-color", false, "disable coloured output")
	)
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: report -file metrics.json [-endpoint id] [-field executionTime]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*file) // #nosec G304 -- operator-supplied path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
		os.Exit(1)
	}
	records, skipped, err := realtime.DecodeMessage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode %s: %v\n", *file, err)
		os.Exit(1)
	}
	for _, rerr := range skipped {
		fmt.Fprintf(os.Stderr, "Skipping %v\n", rerr)
	}

	r := newReporter(os.Stdout, *top)
	if err := r.Write(filterEndpoint(records, *endpoint), types.MetricField(*field)); err != nil {
		fmt.Fprintf(os.Stderr, "Report failed: %v\n", err)
		os.Exit(1)
	}
}

func filterEndpoint(records []types.MetricRecord, endpoint string) []types.MetricRecord {
	if endpoint == "" {
		return records
	}
	out := records[:0:0]
	for _, m := range records {
		if m.EndpointID == endpoint {
			out = append(out, m)
		}
	}
	return out
}

// reporter renders the analytics of one metric set
type reporter struct {
	out     io.Writer
	printer *message.Printer
	perf    *analytics.PerformanceAnalytics
	series  *timeseries.Analytics
	top     int

	title *color.Color
	label *color.Color
	good  *color.Color
	warn  *color.Color
	bad   *color.Color
}

func newReporter(out io.Writer, top int) *reporter {
	cfg := timeseries.DefaultConfig()
	if top > 0 {
		cfg.TopN = top
	}
	return &reporter{
		out:     out,
		printer: message.NewPrinter(language.English),
		perf:    analytics.NewPerformanceAnalytics(analytics.DefaultConfig()),
		series:  timeseries.New(cfg, gqlquery.NewAnalyzer(), nil),
		top:     top,
		title:   color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgWhite, color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
	}
}

// Write prints every report section. Sections that need more data than the
// set holds are reported as skipped.
func (r *reporter) Write(records []types.MetricRecord, field types.MetricField) error {
	if len(records) == 0 {
		return fmt.Errorf("no metric records to report on")
	}
	if !field.Valid() {
		return fmt.Errorf("unknown metric field %q", field)
	}

	start, end := records[0].Timestamp, records[0].Timestamp
	for _, m := range records[1:] {
		if m.Timestamp.Before(start) {
			start = m.Timestamp
		}
		if m.Timestamp.After(end) {
			end = m.Timestamp
		}
	}

	r.title.Fprintln(r.out, "GraphQL performance report")
	r.printer.Fprintf(r.out, "%d records from %s to %s\n\n",
		len(records), start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	r.writeSummary(records)
	r.writePercentiles(records, field)
	r.writeTrend(records, field)
	r.writeAnomalies(records, field)
	r.writeTopQueries(records, start, end)
	return nil
}

func (r *reporter) section(name string) {
	r.title.Fprintf(r.out, "\n%s\n", name)
}

func (r *reporter) skipped(err error) {
	r.warn.Fprintf(r.out, "  skipped: %v\n", err)
}

func (r *reporter) writeSummary(records []types.MetricRecord) {
	stats := r.series.CalculateSelectionStatistics(records)
	r.section("Summary")
	r.label.Fprint(r.out, "  queries     ")
	r.printer.Fprintf(r.out, "%d\n", stats.Count)
	r.label.Fprint(r.out, "  mean        ")
	r.printer.Fprintf(r.out, "%.1f ms\n", stats.Mean)
	r.label.Fprint(r.out, "  error rate  ")
	rate := r.good
	if stats.ErrorRate >= 0.05 {
		rate = r.bad
	} else if stats.ErrorRate > 0 {
		rate = r.warn
	}
	rate.Fprintf(r.out, "%.2f%%\n", stats.ErrorRate*100)
}

func (r *reporter) writePercentiles(records []types.MetricRecord, field types.MetricField) {
	r.section("Percentiles (" + string(field) + ")")
	p, err := r.perf.CalculatePercentiles(records, field)
	if err != nil {
		r.skipped(err)
		return
	}
	r.printer.Fprintf(r.out, "  p50 %.1f  p90 %.1f  p95 %.1f  p99 %.1f  (n=%d)\n", p.P50, p.P90, p.P95, p.P99, p.Count)
}

func (r *reporter) writeTrend(records []types.MetricRecord, field types.MetricField) {
	r.section("Trend (" + string(field) + ")")
	trend, err := r.perf.CalculatePerformanceTrend(records, field)
	if err != nil {
		r.skipped(err)
		return
	}
	c := r.warn
	switch trend.Direction {
	case analytics.TrendImproving:
		c = r.good
	case analytics.TrendDegrading:
		c = r.bad
	}
	c.Fprintf(r.out, "  %s", trend.Direction)
	r.printer.Fprintf(r.out, " %+.1f%% (%.1f -> %.1f, confidence %.2f)\n",
		trend.PercentChange, trend.StartValue, trend.EndValue, trend.Confidence)
}

func (r *reporter) writeAnomalies(records []types.MetricRecord, field types.MetricField) {
	r.section("Anomalies (" + string(field) + ")")
	anomalies, err := r.perf.DetectAnomalies(records, field)
	if err != nil {
		r.skipped(err)
		return
	}
	if len(anomalies) == 0 {
		r.good.Fprintln(r.out, "  none")
		return
	}
	for _, a := range anomalies {
		c := r.warn
		if a.Severity.Rank() >= types.SeverityHigh.Rank() {
			c = r.bad
		}
		c.Fprintf(r.out, "  %-8s", a.Severity)
		r.printer.Fprintf(r.out, " %s %s value %.1f expected %.1f (z=%.2f)\n",
			a.Timestamp.UTC().Format(time.RFC3339), a.EndpointID, a.Value, a.Expected, a.ZScore)
	}
}

func (r *reporter) writeTopQueries(records []types.MetricRecord, start, end time.Time) {
	r.section("Top queries")
	report := r.series.GenerateDrillDownReport(records, start, end)
	for i, q := range report.TopQueries {
		if r.top > 0 && i >= r.top {
			break
		}
		name := q.OperationName
		if name == "" {
			name = q.Identity
		}
		r.label.Fprintf(r.out, "  %2d. %s", i+1, name)
		r.printer.Fprintf(r.out, "  %d calls, %.1f%% of traffic, mean %.1f ms\n", q.Count, q.Share*100, q.Stats.Mean)
	}
}
