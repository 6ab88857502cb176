package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"github.com/shopspring/decimal"
)

func defaultCuts() config.SeverityCutPoints {
	return config.SeverityCutPoints{
		Critical: dec("20"),
		High:     dec("10"),
		Medium:   dec("5"),
	}
}

func TestClassify_ThresholdBoundary(t *testing.T) {
	threshold := dec("5")

	// exactly at the threshold: tolerated
	v := ComputeVariance(dec("100"), dec("95"))
	isAnomaly, severity := Classify(v, threshold, defaultCuts())
	if isAnomaly {
		t.Fatalf("5.0%% at threshold 5 must not be anomalous")
	}
	if severity != models.SeverityNone {
		t.Fatalf("severity = %s, want None", severity)
	}

	// just past it: anomalous
	v = ComputeVariance(dec("10000"), dec("9499"))
	isAnomaly, severity = Classify(v, threshold, defaultCuts())
	if !isAnomaly {
		t.Fatalf("5.01%% at threshold 5 must be anomalous")
	}
	if severity != models.SeverityMedium {
		t.Fatalf("severity = %s, want Medium", severity)
	}
}

func TestClassify_SeverityTiers(t *testing.T) {
	threshold := dec("2")
	cases := []struct {
		name, expected, actual string
		want                   models.Severity
	}{
		{"low above threshold", "100", "97", models.SeverityLow},
		{"exactly medium cut stays low", "100", "95", models.SeverityLow},
		{"medium", "100", "94", models.SeverityMedium},
		{"exactly high cut stays medium", "100", "90", models.SeverityMedium},
		{"high", "100", "89", models.SeverityHigh},
		{"exactly critical cut stays high", "100", "80", models.SeverityHigh},
		{"critical", "100", "79", models.SeverityCritical},
		{"overage critical", "100", "121", models.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ComputeVariance(dec(tc.expected), dec(tc.actual))
			isAnomaly, severity := Classify(v, threshold, defaultCuts())
			if !isAnomaly {
				t.Fatalf("expected anomalous")
			}
			if severity != tc.want {
				t.Fatalf("severity = %s, want %s", severity, tc.want)
			}
		})
	}
}

func TestClassify_WithinThresholdNotAnomalous(t *testing.T) {
	v := ComputeVariance(dec("100"), dec("99"))
	isAnomaly, severity := Classify(v, dec("2"), defaultCuts())
	if isAnomaly || severity != models.SeverityNone {
		t.Fatalf("1%% within threshold 2 must be tolerated, got %v/%s", isAnomaly, severity)
	}
}

func TestClassify_ZeroExpectedAlwaysCritical(t *testing.T) {
	v := ComputeVariance(decimal.Zero, dec("1"))
	// even an absurdly loose threshold cannot mask found stock
	isAnomaly, severity := Classify(v, dec("1000"), defaultCuts())
	if !isAnomaly {
		t.Fatalf("zero-expected with stock found must be anomalous")
	}
	if severity != models.SeverityCritical {
		t.Fatalf("severity = %s, want Critical", severity)
	}
}

func TestSeverityRank_TotalOrder(t *testing.T) {
	order := []models.Severity{
		models.SeverityNone,
		models.SeverityLow,
		models.SeverityMedium,
		models.SeverityHigh,
		models.SeverityCritical,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("%s should rank below %s", order[i-1], order[i])
		}
	}
}
