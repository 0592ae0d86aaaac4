package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentChange returns (current - past) / past * 100, or zero when past is zero.
func PercentChange(current, past decimal.Decimal) decimal.Decimal {
	if past.IsZero() {
		return decimal.Zero
	}
	return current.Sub(past).Div(past).Mul(hundred)
}

// ClampScore bounds a reliability or accuracy score to [MinScore, MaxScore].
// NaN is treated as MinScore.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// ValidScore reports whether v is a finite value inside [MinScore, MaxScore].
func ValidScore(v float64) bool {
	return !math.IsNaN(v) && v >= MinScore && v <= MaxScore
}
