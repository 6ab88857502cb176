package workflow

import (
	"github.com/shopspring/decimal"
)

// VarianceResult carries the derived variance figures for one count line.
// ZeroExpected marks the division-by-zero edge: Percent then holds the
// sentinel (+-100, sign of actual) instead of a real ratio, and the
// classifier treats the line as anomalous regardless of threshold.
type VarianceResult struct {
	Variance     decimal.Decimal
	Percent      decimal.Decimal
	ZeroExpected bool
}

var hundred = decimal.NewFromInt(100)

func Variance(expected decimal.Decimal, actual decimal.Decimal) decimal.Decimal {
	return actual.Sub(expected)
}

// ComputeVariance derives variance and variance-percent from the frozen
// expected quantity and the counted actual. Variance figures are never
// stored; every reader recomputes them through here.
func ComputeVariance(expected decimal.Decimal, actual decimal.Decimal) VarianceResult {
	variance := Variance(expected, actual)

	if expected.IsZero() {
		if actual.IsZero() {
			return VarianceResult{Variance: variance, Percent: decimal.Zero}
		}
		percent := hundred
		if actual.IsNegative() {
			percent = hundred.Neg()
		}
		return VarianceResult{Variance: variance, Percent: percent, ZeroExpected: true}
	}

	percent := variance.Div(expected).Mul(hundred)
	return VarianceResult{Variance: variance, Percent: percent}
}
