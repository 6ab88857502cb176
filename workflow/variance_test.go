package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeVariance_Formula(t *testing.T) {
	cases := []struct {
		name, expected, actual string
		wantVariance, wantPct  string
	}{
		{"shortage", "100", "90", "-10", "-10"},
		{"overage", "100", "110", "10", "10"},
		{"exact", "100", "100", "0", "0"},
		{"fractional", "40", "41", "1", "2.5"},
		{"decimal quantities", "12.5", "10", "-2.5", "-20"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ComputeVariance(dec(tc.expected), dec(tc.actual))
			if !v.Variance.Equal(dec(tc.wantVariance)) {
				t.Fatalf("variance = %s, want %s", v.Variance, tc.wantVariance)
			}
			if !v.Percent.Equal(dec(tc.wantPct)) {
				t.Fatalf("percent = %s, want %s", v.Percent, tc.wantPct)
			}
			if v.ZeroExpected {
				t.Fatalf("ZeroExpected should be false for expected=%s", tc.expected)
			}
		})
	}
}

func TestComputeVariance_ZeroExpectedSentinel(t *testing.T) {
	// nothing expected, nothing counted: no variance at all
	v := ComputeVariance(decimal.Zero, decimal.Zero)
	if v.ZeroExpected || !v.Percent.IsZero() || !v.Variance.IsZero() {
		t.Fatalf("zero/zero should be a clean zero result, got %+v", v)
	}

	// nothing expected but stock found: sentinel +100, flagged
	v = ComputeVariance(decimal.Zero, dec("7"))
	if !v.ZeroExpected {
		t.Fatalf("expected ZeroExpected flag")
	}
	if !v.Percent.Equal(dec("100")) {
		t.Fatalf("sentinel percent = %s, want 100", v.Percent)
	}
	if !v.Variance.Equal(dec("7")) {
		t.Fatalf("variance = %s, want 7", v.Variance)
	}

	// negative actual keeps the sign on the sentinel
	v = ComputeVariance(decimal.Zero, dec("-3"))
	if !v.ZeroExpected || !v.Percent.Equal(dec("-100")) {
		t.Fatalf("sentinel percent = %s, want -100", v.Percent)
	}
}
