package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

func TestCanTransition_FullTable(t *testing.T) {
	all := []models.UnitStatus{
		models.UnitStatusDraft,
		models.UnitStatusCounting,
		models.UnitStatusReview,
		models.UnitStatusResolved,
		models.UnitStatusCancelled,
	}

	legal := map[models.UnitStatus]map[models.UnitStatus]bool{
		models.UnitStatusDraft:    {models.UnitStatusCounting: true, models.UnitStatusCancelled: true},
		models.UnitStatusCounting: {models.UnitStatusReview: true, models.UnitStatusCancelled: true},
		models.UnitStatusReview:   {models.UnitStatusResolved: true, models.UnitStatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCheckTransition_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []models.UnitStatus{models.UnitStatusResolved, models.UnitStatusCancelled} {
		if !from.IsTerminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range []models.UnitStatus{
			models.UnitStatusDraft,
			models.UnitStatusCounting,
			models.UnitStatusReview,
			models.UnitStatusResolved,
			models.UnitStatusCancelled,
		} {
			err := CheckTransition(from, to)
			if err == nil {
				t.Fatalf("CheckTransition(%s, %s) should fail", from, to)
			}
			if !errors.Is(err, utils.ErrInvalidTransition) {
				t.Fatalf("error should wrap ErrInvalidTransition, got %v", err)
			}
		}
	}
}
