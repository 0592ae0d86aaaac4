package ledger

import (
	"fmt"
	"time"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// Period is a calendar-aligned aggregation granularity. All buckets are UTC.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week" // ISO week, Monday start
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q: %w", s, domain.ErrInvalidInput)
}

// BucketStart returns the start of the calendar bucket containing t.
func BucketStart(t time.Time, p Period) time.Time {
	t = t.UTC()
	switch p {
	case PeriodHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case PeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// BucketKey returns a stable label for the bucket containing t,
// e.g. "2024-03-05T14", "2024-03-05", "2024-W10", "2024-03".
func BucketKey(t time.Time, p Period) string {
	t = t.UTC()
	switch p {
	case PeriodHour:
		return t.Format("2006-01-02T15")
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
