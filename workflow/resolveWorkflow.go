package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LineResolutionInput struct {
	LineId     int    `json:"line_id" binding:"required"`
	Resolution string `json:"resolution" binding:"required"`
	Notes      string `json:"notes"`
}

type lineDecision struct {
	resolution models.LineResolution
	notes      string
	explicit   bool
}

// decideResolution applies the defaulting rules for one line when the
// reviewer gave no explicit decision:
//   - uncounted lines keep the system quantity
//   - anomalous lines go to investigation
//   - within the auto-accept band the count is taken as-is
//   - everything else keeps the system quantity
func decideResolution(line *models.CountLine, explicit *lineDecision, v VarianceResult, hasVariance bool) (models.LineResolution, string, error) {
	if line.ActualQty == nil {
		if explicit != nil {
			if explicit.resolution == models.ResolutionAccept {
				return "", "", utils.ValidationError("cannot accept uncounted line %d", line.ID)
			}
			return explicit.resolution, explicit.notes, nil
		}
		return models.ResolutionKeepSystem, "", nil
	}

	if explicit != nil {
		return explicit.resolution, explicit.notes, nil
	}
	if line.IsAnomaly {
		return models.ResolutionInvestigate, "", nil
	}
	if hasVariance && v.Percent.Abs().LessThanOrEqual(config.AutoAcceptBand()) {
		return models.ResolutionAccept, "", nil
	}
	return models.ResolutionKeepSystem, "", nil
}

// ResolveUnit applies the reviewer's (possibly partial) per-line decisions
// and finalizes the unit. Ledger writes, movement rows, anomaly rows, the
// status transition and history all commit in one transaction; a ledger
// version conflict aborts everything. The transaction is serialized per
// contractor by a MySQL advisory lock, with a best-effort redis lock in
// front to keep concurrent callers from blocking on the DB.
func ResolveUnit(ctx context.Context, unitId int, reviewerId int, resolutions []LineResolutionInput) (*models.ReconciliationUnit, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	decisions := make(map[int]*lineDecision, len(resolutions))
	for _, r := range resolutions {
		resolution, err := models.ParseLineResolution(r.Resolution)
		if err != nil {
			return nil, utils.ValidationError("invalid resolution %q on line %d", r.Resolution, r.LineId)
		}
		decisions[r.LineId] = &lineDecision{resolution: resolution, notes: r.Notes, explicit: true}
	}

	// Best-effort outer lock. The advisory lock inside the transaction is
	// what guarantees correctness; this only avoids in-request blocking.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("resolve:%s:%d", businessId, unitId), 30*time.Second, nil)
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		} else if err == redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{
				"field":   "resolveWorkflow",
				"unit_id": unitId,
			}).Warn("could not obtain redis lock; proceeding with advisory lock only")
		}
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := models.GetUnitForUpdate(tx, businessId, unitId)
		if err != nil {
			return err
		}

		if err := AcquireContractorLock(tx, businessId, unit.ContractorId); err != nil {
			return err
		}
		defer ReleaseContractorLock(tx, businessId, unit.ContractorId)

		// Resolving an already-resolved unit is an error, not a replay: the
		// idempotency row and the status transition commit together, so the
		// key only fences a caller racing this transaction, never a second
		// resolve arriving after commit.
		if err := CheckTransition(unit.Status, models.UnitStatusResolved); err != nil {
			return err
		}

		skip, err := BeginIdempotency(tx, businessId, "resolve", strconv.Itoa(unitId))
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		lineIds := make(map[int]bool, len(unit.Lines))
		for i := range unit.Lines {
			lineIds[unit.Lines[i].ID] = true
		}
		for lineId := range decisions {
			if !lineIds[lineId] {
				return utils.ValidationError("line %d does not belong to unit %d", lineId, unitId)
			}
		}

		for i := range unit.Lines {
			line := &unit.Lines[i]

			var v VarianceResult
			hasVariance := false
			if line.ActualQty != nil {
				v = ComputeVariance(line.ExpectedQty, *line.ActualQty)
				hasVariance = true
			}

			resolution, notes, err := decideResolution(line, decisions[line.ID], v, hasVariance)
			if err != nil {
				return err
			}

			if err := applyLine(tx, unit, line, resolution, v, hasVariance, reviewerId); err != nil {
				return err
			}

			if err := tx.Model(&models.CountLine{}).Where("id = ?", line.ID).
				Updates(map[string]interface{}{
					"Resolution":      &resolution,
					"ResolutionNotes": notes,
				}).Error; err != nil {
				return err
			}

			// An explicit investigate opens a worklist entry even when the
			// line never breached its threshold; the follow-up must outlive
			// the unit.
			if (line.IsAnomaly || resolution == models.ResolutionInvestigate) && hasVariance {
				anomaly := models.Anomaly{
					BusinessId:   businessId,
					UnitId:       unit.ID,
					LineId:       line.ID,
					ContractorId: unit.ContractorId,
					MaterialId:   line.MaterialId,
					ExpectedQty:  line.ExpectedQty,
					ActualQty:    *line.ActualQty,
					VarianceQty:  v.Variance,
					VariancePct:  v.Percent,
					Severity:     line.Severity,
					ThresholdPct: line.ThresholdPct,
					Tier:         line.Tier,
				}
				if err := models.UpsertAnomaly(tx, &anomaly); err != nil {
					return err
				}
			}
		}

		now := time.Now()
		if err := tx.Model(&models.ReconciliationUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]interface{}{
				"Status":     models.UnitStatusResolved,
				"ReviewerId": &reviewerId,
				"ResolvedBy": &reviewerId,
				"ResolvedAt": &now,
			}).Error; err != nil {
			return err
		}
		if err := models.SaveHistoryAction(tx, unit.ID, "reconciliation_units", "RESOLVE",
			fmt.Sprintf("%s resolved.", unit.UnitNumber)); err != nil {
			return err
		}

		return MarkIdempotencySucceeded(tx, businessId, "resolve", strconv.Itoa(unitId))
	})
	if err != nil {
		config.LogError(logger, "resolveWorkflow.go", "ResolveUnit", "resolving unit", unitId, err)
		return nil, err
	}

	return models.GetReconciliationUnit(ctx, unitId)
}

// ClaimReview assigns a reviewer to a submitted unit. Audits show
// "under_review" instead of "submitted" once claimed. A unit claimed by
// someone else cannot be claimed again; re-claiming by the same reviewer
// is a no-op.
func ClaimReview(ctx context.Context, unitId int, reviewerId int) (*models.ReconciliationUnit, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := models.GetUnitForUpdate(tx, businessId, unitId)
		if err != nil {
			return err
		}
		if unit.Status != models.UnitStatusReview {
			return utils.InvalidTransitionError("review can only be claimed while unit is %s (status %s)",
				models.UnitStatusReview, unit.Status)
		}
		if unit.ReviewerId != nil && *unit.ReviewerId != reviewerId {
			return utils.ValidationError("unit %s is already under review", unit.UnitNumber)
		}
		if err := tx.Model(&models.ReconciliationUnit{}).Where("id = ?", unit.ID).
			Update("reviewer_id", &reviewerId).Error; err != nil {
			return err
		}
		return models.SaveHistoryAction(tx, unit.ID, "reconciliation_units", "CLAIM",
			fmt.Sprintf("%s picked up for review.", unit.UnitNumber))
	})
	if err != nil {
		config.LogError(logger, "resolveWorkflow.go", "ClaimReview", "claiming review", unitId, err)
		return nil, err
	}

	return models.GetReconciliationUnit(ctx, unitId)
}

// applyLine performs the ledger effect of one resolved line. The movement
// row's unique (unit, line) key makes the effect idempotent: when the row
// already exists the write is skipped, so a retried resolve cannot apply
// the same variance twice.
func applyLine(tx *gorm.DB, unit *models.ReconciliationUnit, line *models.CountLine, resolution models.LineResolution, v VarianceResult, hasVariance bool, reviewerId int) error {
	if !hasVariance || resolution == models.ResolutionInvestigate {
		return nil
	}

	switch resolution {
	case models.ResolutionAccept:
		qty, version, err := models.ReadQuantity(tx, unit.BusinessId, unit.ContractorId, line.MaterialId)
		if err != nil {
			return err
		}
		applied, err := models.RecordMovement(tx, &models.StockMovement{
			BusinessId:   unit.BusinessId,
			UnitId:       unit.ID,
			LineId:       line.ID,
			ContractorId: unit.ContractorId,
			MaterialId:   line.MaterialId,
			MovementType: models.MovementTypeAdjustment,
			QtyBefore:    qty,
			QtyAfter:     *line.ActualQty,
			VarianceQty:  v.Variance,
			AppliedBy:    reviewerId,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return models.WriteQuantity(tx, unit.BusinessId, unit.ContractorId, line.MaterialId, *line.ActualQty, version)

	case models.ResolutionKeepSystem:
		if v.Variance.IsZero() {
			return nil
		}
		movementType := models.MovementTypeLoss
		if v.Variance.IsPositive() {
			movementType = models.MovementTypeGain
		}
		qty, _, err := models.ReadQuantity(tx, unit.BusinessId, unit.ContractorId, line.MaterialId)
		if err != nil {
			return err
		}
		_, err = models.RecordMovement(tx, &models.StockMovement{
			BusinessId:   unit.BusinessId,
			UnitId:       unit.ID,
			LineId:       line.ID,
			ContractorId: unit.ContractorId,
			MaterialId:   line.MaterialId,
			MovementType: movementType,
			QtyBefore:    qty,
			QtyAfter:     qty,
			VarianceQty:  v.Variance,
			AppliedBy:    reviewerId,
		})
		return err
	}
	return nil
}
