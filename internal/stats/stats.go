// Package stats provides decimal statistics over price series.
package stats

import (
	"log/slog"
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Mean calculates the arithmetic mean of a decimal slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(v)
	}, decimal.Zero)
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// PopulationVariance calculates the variance of a decimal slice over all n values.
func PopulationVariance(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	mean := Mean(values)
	sumSqDiff := lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		diff := v.Sub(mean)
		return acc.Add(diff.Mul(diff))
	}, decimal.Zero)

	return sumSqDiff.Div(decimal.NewFromInt(int64(len(values))))
}

// PopulationStdDev calculates the population standard deviation of a decimal slice.
func PopulationStdDev(values []decimal.Decimal) decimal.Decimal {
	v := PopulationVariance(values)
	f, exact := v.Float64()
	if !exact {
		slog.Debug("precision loss in PopulationStdDev float64 conversion", "variance", v.String())
	}
	return decimal.NewFromFloat(math.Sqrt(f))
}

// SimpleReturns returns (p[i] - p[i-1]) / p[i-1] for consecutive prices.
// Pairs whose previous price is zero are skipped.
func SimpleReturns(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev.IsZero() {
			continue
		}
		returns = append(returns, prices[i].Sub(prev).Div(prev))
	}
	return returns
}

// MinMax returns the smallest and largest value. Both are zero for an empty slice.
func MinMax(values []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(values) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return decimal.Min(values[0], values[1:]...), decimal.Max(values[0], values[1:]...)
}
