package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/analytics"
	"github.com/mtlprog/rwaoracle/internal/domain"
)

type stubAssets []int64

func (s stubAssets) List(context.Context) ([]int64, error) { return s, nil }

type stubAnalytics map[int64]analytics.Summary

func (s stubAnalytics) Analytics(_ context.Context, tokenID int64) (analytics.Summary, error) {
	sum, ok := s[tokenID]
	if !ok {
		return analytics.Summary{}, domain.ErrNotFound
	}
	return sum, nil
}

type recordingWriter struct {
	rows []analytics.Summary
	at   time.Time
	err  error
}

func (w *recordingWriter) Write(_ context.Context, rows []analytics.Summary, at time.Time) error {
	w.rows = rows
	w.at = at
	return w.err
}

func TestExportSkipsFailingAssets(t *testing.T) {
	writer := &recordingWriter{}
	svc := NewService(
		stubAssets{1, 2, 3},
		stubAnalytics{
			1: {TokenID: 1, Current: domain.Valuation{Value: decimal.NewFromInt(100)}},
			3: {TokenID: 3, Current: domain.Valuation{Value: decimal.NewFromInt(300)}},
		},
		writer,
	)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	if err := svc.Export(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(writer.rows))
	}
	if writer.rows[0].TokenID != 1 || writer.rows[1].TokenID != 3 {
		t.Errorf("rows = %+v", writer.rows)
	}
	if !writer.at.Equal(at) {
		t.Errorf("at = %v, want %v", writer.at, at)
	}
}

func TestExportPropagatesWriterError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("quota exceeded")}
	svc := NewService(stubAssets{}, stubAnalytics{}, writer)
	if err := svc.Export(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestBuildAnalyticsSheet(t *testing.T) {
	confidence := 88.0
	rows := []analytics.Summary{{
		TokenID: 5,
		Current: domain.Valuation{
			Value:           decimal.NewFromInt(110),
			ValueUSD:        decimal.NewFromInt(110000),
			ConfidenceScore: &confidence,
		},
		Change24h:         decimal.NewFromFloat(2.5),
		Volatility:        decimal.NewFromInt(4),
		AverageConfidence: 90,
		EntryCount:        12,
	}}

	data := buildAnalyticsSheet(rows)
	if len(data) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(data))
	}
	if data[0][0] != "Token ID" || len(data[0]) != len(analyticsColumns) {
		t.Errorf("header = %v", data[0])
	}
	row := data[1]
	if row[0] != int64(5) {
		t.Errorf("token id cell = %v", row[0])
	}
	if row[2] != 110000.0 {
		t.Errorf("value usd cell = %v", row[2])
	}
	if row[3] != 88.0 {
		t.Errorf("confidence cell = %v", row[3])
	}
	if row[4] != 2.5 {
		t.Errorf("change 24h cell = %v", row[4])
	}
	if row[9] != 12 {
		t.Errorf("entries cell = %v", row[9])
	}
}

func TestBuildMonitoringRows(t *testing.T) {
	at := time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)
	rows := []analytics.Summary{{TokenID: 1}, {TokenID: 2}}

	data := buildMonitoringRows(rows, at)
	if len(data) != 2 {
		t.Fatalf("rows = %d, want 2", len(data))
	}
	for _, r := range data {
		if r[0] != "2026-02-24" {
			t.Errorf("date cell = %v", r[0])
		}
		if len(r) != 1+len(analyticsColumns) {
			t.Errorf("row width = %d, want %d", len(r), 1+len(analyticsColumns))
		}
	}
	if data[0][3] != 0.0 {
		t.Errorf("empty value cell = %v", data[0][3])
	}
	if data[0][4] != nil {
		t.Errorf("missing confidence cell = %v, want nil", data[0][4])
	}
}
