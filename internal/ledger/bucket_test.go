package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"hour", "day", "week", "month"} {
		if _, err := ParsePeriod(s); err != nil {
			t.Errorf("ParsePeriod(%q) error: %v", s, err)
		}
	}
	if _, err := ParsePeriod("quarter"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ParsePeriod(quarter) err = %v, want ErrInvalidInput", err)
	}
}

func TestBucketKey(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 35, 10, 0, time.UTC) // Tuesday
	tests := []struct {
		period Period
		want   string
	}{
		{PeriodHour, "2024-03-05T14"},
		{PeriodDay, "2024-03-05"},
		{PeriodWeek, "2024-W10"},
		{PeriodMonth, "2024-03"},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			if got := BucketKey(ts, tt.period); got != tt.want {
				t.Errorf("BucketKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBucketKeyISOWeekYearBoundary(t *testing.T) {
	// 2024-12-30 (Monday) belongs to ISO week 1 of 2025.
	ts := time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)
	if got := BucketKey(ts, PeriodWeek); got != "2025-W01" {
		t.Errorf("BucketKey = %q, want 2025-W01", got)
	}
	start := BucketStart(ts, PeriodWeek)
	if !start.Equal(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("BucketStart = %v, want 2024-12-30", start)
	}
}

func TestBucketStartWeekIsMonday(t *testing.T) {
	sunday := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	start := BucketStart(sunday, PeriodWeek)
	if start.Weekday() != time.Monday {
		t.Errorf("week start weekday = %v, want Monday", start.Weekday())
	}
	if !start.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("BucketStart = %v, want 2024-03-04", start)
	}
}

func TestBucketStartNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, 3, 1, 1, 0, 0, 0, loc) // 2024-02-29T22:00Z
	if got := BucketKey(ts, PeriodMonth); got != "2024-02" {
		t.Errorf("BucketKey = %q, want 2024-02", got)
	}
	if got := BucketStart(ts, PeriodDay); !got.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("BucketStart = %v, want 2024-02-29", got)
	}
}

func TestBucketKeyMatchesStart(t *testing.T) {
	// Every timestamp shares its key with its bucket start, so keys partition time.
	base := time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)
	for _, p := range []Period{PeriodHour, PeriodDay, PeriodWeek, PeriodMonth} {
		for i := 0; i < 24*60; i++ {
			ts := base.Add(time.Duration(i) * 37 * time.Minute)
			if BucketKey(ts, p) != BucketKey(BucketStart(ts, p), p) {
				t.Fatalf("%s: key of %v differs from key of its bucket start", p, ts)
			}
			if BucketStart(ts, p).After(ts) {
				t.Fatalf("%s: bucket start after timestamp %v", p, ts)
			}
		}
	}
}
