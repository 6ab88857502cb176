package workflow

import (
	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"github.com/shopspring/decimal"
)

// Classify decides whether a counted line is anomalous and assigns its
// severity tier. Pure: same inputs always give the same answer.
//
// Rules:
//   - zero expected with a nonzero actual is always anomalous at Critical,
//     whatever the threshold says; there is no base to tolerate against
//   - otherwise anomalous iff |percent| strictly exceeds the threshold
//   - severity from the cut points, strictly exceeded: > Critical cut,
//     > High cut, > Medium cut, else Low
func Classify(v VarianceResult, threshold decimal.Decimal, cuts config.SeverityCutPoints) (bool, models.Severity) {
	if v.ZeroExpected {
		return true, models.SeverityCritical
	}

	abs := v.Percent.Abs()
	if abs.LessThanOrEqual(threshold) {
		return false, models.SeverityNone
	}

	switch {
	case abs.GreaterThan(cuts.Critical):
		return true, models.SeverityCritical
	case abs.GreaterThan(cuts.High):
		return true, models.SeverityHigh
	case abs.GreaterThan(cuts.Medium):
		return true, models.SeverityMedium
	}
	return true, models.SeverityLow
}
