package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Variance policy knobs. The observed severity cut points (20/10/5) and the
// 2% system default tolerance come from operations; keep them configurable
// rather than baked into the classifier.
//
// Set via env:
// - VARIANCE_DEFAULT_THRESHOLD_PCT=2
// - VARIANCE_AUTO_ACCEPT_PCT=2
// - VARIANCE_SEVERITY_CRITICAL_PCT=20
// - VARIANCE_SEVERITY_HIGH_PCT=10
// - VARIANCE_SEVERITY_MEDIUM_PCT=5

func decimalFromEnv(key string, def string) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return decimal.RequireFromString(def)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.RequireFromString(def)
	}
	return d
}

// DefaultVarianceThreshold is the cascade floor: the tolerance applied when
// neither a contractor-specific nor a material-default threshold row matches.
func DefaultVarianceThreshold() decimal.Decimal {
	return decimalFromEnv("VARIANCE_DEFAULT_THRESHOLD_PCT", "2")
}

// AutoAcceptBand is the |variance%| band within which an unresolved,
// non-anomalous line defaults to Accept at resolve time.
func AutoAcceptBand() decimal.Decimal {
	return decimalFromEnv("VARIANCE_AUTO_ACCEPT_PCT", "2")
}

type SeverityCutPoints struct {
	Critical decimal.Decimal
	High     decimal.Decimal
	Medium   decimal.Decimal
}

func GetSeverityCutPoints() SeverityCutPoints {
	return SeverityCutPoints{
		Critical: decimalFromEnv("VARIANCE_SEVERITY_CRITICAL_PCT", "20"),
		High:     decimalFromEnv("VARIANCE_SEVERITY_HIGH_PCT", "10"),
		Medium:   decimalFromEnv("VARIANCE_SEVERITY_MEDIUM_PCT", "5"),
	}
}
