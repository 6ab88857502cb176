package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

func countedLine(expected, actual string, isAnomaly bool) *models.CountLine {
	a := dec(actual)
	return &models.CountLine{
		ID:          1,
		ExpectedQty: dec(expected),
		ActualQty:   &a,
		IsAnomaly:   isAnomaly,
	}
}

func TestDecideResolution_UncountedDefaultsToKeepSystem(t *testing.T) {
	line := &models.CountLine{ID: 1, ExpectedQty: dec("100")}
	resolution, _, err := decideResolution(line, nil, VarianceResult{}, false)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionKeepSystem {
		t.Fatalf("resolution = %s, want KeepSystem", resolution)
	}
}

func TestDecideResolution_ExplicitAcceptOnUncountedRejected(t *testing.T) {
	line := &models.CountLine{ID: 1, ExpectedQty: dec("100")}
	explicit := &lineDecision{resolution: models.ResolutionAccept, explicit: true}
	_, _, err := decideResolution(line, explicit, VarianceResult{}, false)
	if err == nil {
		t.Fatalf("accepting an uncounted line must fail")
	}
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("error should wrap ErrValidation, got %v", err)
	}
}

func TestDecideResolution_ExplicitInvestigateOnUncountedAllowed(t *testing.T) {
	line := &models.CountLine{ID: 1, ExpectedQty: dec("100")}
	explicit := &lineDecision{resolution: models.ResolutionInvestigate, explicit: true}
	resolution, _, err := decideResolution(line, explicit, VarianceResult{}, false)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionInvestigate {
		t.Fatalf("resolution = %s, want Investigate", resolution)
	}
}

func TestDecideResolution_AnomalousDefaultsToInvestigate(t *testing.T) {
	line := countedLine("100", "80", true)
	v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
	resolution, _, err := decideResolution(line, nil, v, true)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionInvestigate {
		t.Fatalf("resolution = %s, want Investigate", resolution)
	}
}

func TestDecideResolution_WithinAutoAcceptBand(t *testing.T) {
	// 1% variance, default band 2%
	line := countedLine("100", "99", false)
	v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
	resolution, _, err := decideResolution(line, nil, v, true)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionAccept {
		t.Fatalf("resolution = %s, want Accept", resolution)
	}
}

func TestDecideResolution_OutsideBandKeepsSystem(t *testing.T) {
	// 3% variance, not anomalous (e.g. loose threshold), above the band
	line := countedLine("100", "97", false)
	v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
	resolution, _, err := decideResolution(line, nil, v, true)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionKeepSystem {
		t.Fatalf("resolution = %s, want KeepSystem", resolution)
	}
}

func TestDecideResolution_ExplicitWins(t *testing.T) {
	line := countedLine("100", "80", true)
	v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
	explicit := &lineDecision{resolution: models.ResolutionAccept, notes: "recount verified", explicit: true}
	resolution, notes, err := decideResolution(line, explicit, v, true)
	if err != nil {
		t.Fatalf("decideResolution: %v", err)
	}
	if resolution != models.ResolutionAccept {
		t.Fatalf("resolution = %s, want Accept", resolution)
	}
	if notes != "recount verified" {
		t.Fatalf("notes = %q", notes)
	}
}
