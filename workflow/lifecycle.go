package workflow

import (
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

// legalTransitions is the whole state machine: Draft -> Counting -> Review ->
// Resolved, with Cancelled reachable from any non-terminal state. Terminal
// states have no exits; resolved and cancelled units are never re-opened.
var legalTransitions = map[models.UnitStatus][]models.UnitStatus{
	models.UnitStatusDraft:    {models.UnitStatusCounting, models.UnitStatusCancelled},
	models.UnitStatusCounting: {models.UnitStatusReview, models.UnitStatusCancelled},
	models.UnitStatusReview:   {models.UnitStatusResolved, models.UnitStatusCancelled},
}

func CanTransition(from models.UnitStatus, to models.UnitStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition (wrapped with both states)
// when the move is not in the table.
func CheckTransition(from models.UnitStatus, to models.UnitStatus) error {
	if !CanTransition(from, to) {
		return utils.InvalidTransitionError("cannot move unit from %s to %s", from, to)
	}
	return nil
}
