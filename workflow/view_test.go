package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocktake_backend/models"
)

func blindUnit(status models.UnitStatus) *models.ReconciliationUnit {
	actual := dec("90")
	return &models.ReconciliationUnit{
		ID:     7,
		Kind:   models.UnitKindRoutineCheck,
		Status: status,
		Blind:  true,
		Lines: []models.CountLine{
			{ID: 1, MaterialId: 3, ExpectedQty: dec("100"), ActualQty: &actual},
		},
	}
}

func TestBuildLineView_BlindRedactionWhileCounting(t *testing.T) {
	unit := blindUnit(models.UnitStatusCounting)
	view := BuildLineView(unit, &unit.Lines[0])

	if view.ExpectedQty != nil {
		t.Fatalf("expected qty must be hidden on a blind unit while counting")
	}
	if view.VarianceQty != nil || view.VariancePct != nil {
		t.Fatalf("variance must be hidden alongside expected qty")
	}
	if view.ActualQty == nil || !view.ActualQty.Equal(dec("90")) {
		t.Fatalf("actual qty must stay visible, got %v", view.ActualQty)
	}
}

func TestBuildLineView_BlindVisibleFromReview(t *testing.T) {
	for _, status := range []models.UnitStatus{
		models.UnitStatusReview,
		models.UnitStatusResolved,
	} {
		unit := blindUnit(status)
		view := BuildLineView(unit, &unit.Lines[0])
		if view.ExpectedQty == nil || !view.ExpectedQty.Equal(dec("100")) {
			t.Fatalf("expected qty must be visible in %s", status)
		}
		if view.VariancePct == nil || !view.VariancePct.Equal(dec("-10")) {
			t.Fatalf("variance pct = %v, want -10", view.VariancePct)
		}
	}
}

func TestBuildLineView_NonBlindAlwaysVisible(t *testing.T) {
	unit := blindUnit(models.UnitStatusCounting)
	unit.Blind = false
	view := BuildLineView(unit, &unit.Lines[0])
	if view.ExpectedQty == nil {
		t.Fatalf("expected qty must be visible on non-blind units")
	}
}

func TestBuildUnitView_Counters(t *testing.T) {
	actual := dec("90")
	unit := &models.ReconciliationUnit{
		Kind:   models.UnitKindRoutineCheck,
		Status: models.UnitStatusReview,
		Lines: []models.CountLine{
			{ID: 1, ExpectedQty: dec("100"), ActualQty: &actual, IsAnomaly: true},
			{ID: 2, ExpectedQty: dec("50")},
		},
	}
	view := BuildUnitView(unit)
	if view.TotalLines != 2 || view.CountedLines != 1 || view.AnomalyCount != 1 {
		t.Fatalf("counters = %d/%d/%d, want 2/1/1", view.TotalLines, view.CountedLines, view.AnomalyCount)
	}
	if view.Status != "review" {
		t.Fatalf("status label = %q, want review", view.Status)
	}
}
