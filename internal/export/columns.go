package export

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/analytics"
)

// column describes one analytics column shared by the sheet layouts.
type column struct {
	header string
	value  func(analytics.Summary) any
}

var analyticsColumns = []column{
	{"Token ID", func(s analytics.Summary) any { return s.TokenID }},
	{"Value", func(s analytics.Summary) any { return toFloat(s.Current.Value) }},
	{"Value USD", func(s analytics.Summary) any { return toFloat(s.Current.ValueUSD) }},
	{"Confidence", func(s analytics.Summary) any { return ptrFloat(s.Current.ConfidenceScore) }},
	{"Change 24h %", func(s analytics.Summary) any { return toFloat(s.Change24h) }},
	{"Change 7d %", func(s analytics.Summary) any { return toFloat(s.Change7d) }},
	{"Change 30d %", func(s analytics.Summary) any { return toFloat(s.Change30d) }},
	{"Avg Confidence", func(s analytics.Summary) any { return s.AverageConfidence }},
	{"Volatility %", func(s analytics.Summary) any { return toFloat(s.Volatility) }},
	{"Entries", func(s analytics.Summary) any { return s.EntryCount }},
}

// buildAnalyticsSheet builds the ANALYTICS sheet: a header row and one row
// per asset.
func buildAnalyticsSheet(rows []analytics.Summary) [][]any {
	data := make([][]any, 0, len(rows)+1)
	header := make([]any, len(analyticsColumns))
	for i, c := range analyticsColumns {
		header[i] = c.header
	}
	data = append(data, header)

	for _, r := range rows {
		data = append(data, analyticsRow(r))
	}
	return data
}

// buildMonitoringRows builds rows appended to the MONITORING sheet on each
// run: the run date followed by the analytics columns.
func buildMonitoringRows(rows []analytics.Summary, at time.Time) [][]any {
	date := at.UTC().Format(time.DateOnly)
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, append([]any{date}, analyticsRow(r)...))
	}
	return data
}

func analyticsRow(s analytics.Summary) []any {
	row := make([]any, len(analyticsColumns))
	for i, c := range analyticsColumns {
		row[i] = c.value(s)
	}
	return row
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
