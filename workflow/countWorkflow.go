package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OpenUnitInput struct {
	ContractorId int             `json:"contractor_id" binding:"required"`
	Kind         models.UnitKind `json:"kind" binding:"required"`
	Blind        bool            `json:"blind"`
	CountDate    *time.Time      `json:"count_date"`
	Notes        string          `json:"notes"`
	MaterialIds  []int           `json:"material_ids"`
}

// LineCount is one counted quantity keyed by line. A nil ActualQty clears a
// previously recorded count.
type LineCount struct {
	LineId    int              `json:"line_id" binding:"required"`
	ActualQty *decimal.Decimal `json:"actual_qty"`
}

// OpenUnit creates a reconciliation unit, freezes its count lines from the
// ledger and advances it to Counting. Fails without any ledger effect when
// the contractor is missing, inactive, or has no active holding location.
func OpenUnit(ctx context.Context, input *OpenUnitInput) (*models.ReconciliationUnit, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if !input.Kind.IsValid() {
		return nil, utils.ValidationError("invalid unit kind %q", input.Kind)
	}
	if len(input.MaterialIds) > 0 && input.Kind != models.UnitKindAudit {
		return nil, utils.ValidationError("fixed material scope is only allowed for audits")
	}

	contractor, err := models.GetContractor(ctx, input.ContractorId)
	if err != nil {
		return nil, utils.ValidationError("contractor not found")
	}
	hasLocation, err := contractor.HasHoldingLocation(ctx)
	if err != nil {
		return nil, err
	}
	if !hasLocation {
		return nil, utils.ValidationError("contractor has no active holding location")
	}

	prefix := "CHK"
	if input.Kind == models.UnitKindAudit {
		prefix = "AUD"
	}

	countDate := time.Now()
	if input.CountDate != nil {
		countDate = *input.CountDate
	}

	var unit models.ReconciliationUnit
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unitNumber, err := models.NextDocumentNumber(tx, businessId, prefix)
		if err != nil {
			return err
		}

		lines, err := models.SnapshotLines(tx, businessId, input.ContractorId, input.MaterialIds)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return utils.ValidationError("contractor holds no stock to count")
		}

		unit = models.ReconciliationUnit{
			BusinessId:   businessId,
			UnitNumber:   unitNumber,
			Kind:         input.Kind,
			Status:       models.UnitStatusDraft,
			ContractorId: input.ContractorId,
			Blind:        input.Blind,
			CountDate:    countDate,
			Notes:        input.Notes,
			OpenedBy:     userId,
			Lines:        lines,
		}
		if err := tx.Create(&unit).Error; err != nil {
			return err
		}

		// snapshot done, hand it to the counters
		if err := CheckTransition(unit.Status, models.UnitStatusCounting); err != nil {
			return err
		}
		if err := tx.Model(&models.ReconciliationUnit{}).Where("id = ?", unit.ID).
			Update("status", models.UnitStatusCounting).Error; err != nil {
			return err
		}
		unit.Status = models.UnitStatusCounting
		return nil
	})
	if err != nil {
		config.LogError(logger, "countWorkflow.go", "OpenUnit", "opening reconciliation unit", input, err)
		return nil, err
	}

	return models.GetReconciliationUnit(ctx, unit.ID)
}

func applyCounts(tx *gorm.DB, unit *models.ReconciliationUnit, counterId int, counts []LineCount) error {
	lineById := make(map[int]*models.CountLine, len(unit.Lines))
	for i := range unit.Lines {
		lineById[unit.Lines[i].ID] = &unit.Lines[i]
	}

	now := time.Now()
	for _, count := range counts {
		line, ok := lineById[count.LineId]
		if !ok {
			return utils.ValidationError("line %d does not belong to unit %d", count.LineId, unit.ID)
		}
		if count.ActualQty != nil && count.ActualQty.IsNegative() {
			return utils.ValidationError("actual quantity must not be negative on line %d", count.LineId)
		}

		updates := map[string]interface{}{
			"ActualQty": count.ActualQty,
			"CountedBy": &counterId,
			"CountedAt": &now,
		}
		if count.ActualQty == nil {
			updates["CountedBy"] = nil
			updates["CountedAt"] = nil
		}
		if err := tx.Model(&models.CountLine{}).Where("id = ?", line.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		line.ActualQty = count.ActualQty
	}
	return nil
}

// SaveDraftCounts records in-progress counts. Last write wins per line,
// nothing transitions, and replays are harmless.
func SaveDraftCounts(ctx context.Context, unitId int, counterId int, counts []LineCount) error {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := models.GetUnitForUpdate(tx, businessId, unitId)
		if err != nil {
			return err
		}
		if unit.Status != models.UnitStatusCounting {
			return utils.InvalidTransitionError("counts can only be recorded while unit is %s (status %s)",
				models.UnitStatusCounting, unit.Status)
		}
		return applyCounts(tx, unit, counterId, counts)
	})
	if err != nil {
		config.LogError(logger, "countWorkflow.go", "SaveDraftCounts", "saving draft counts", unitId, err)
		return err
	}
	return nil
}

// SubmitCounts applies a final set of counts, derives variance, threshold
// and classification for every counted line and moves the unit to Review.
// All of it happens in one transaction.
func SubmitCounts(ctx context.Context, unitId int, counterId int, counts []LineCount) (*models.ReconciliationUnit, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	cuts := config.GetSeverityCutPoints()

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := models.GetUnitForUpdate(tx, businessId, unitId)
		if err != nil {
			return err
		}
		if unit.Status != models.UnitStatusCounting {
			return utils.InvalidTransitionError("counts can only be submitted while unit is %s (status %s)",
				models.UnitStatusCounting, unit.Status)
		}
		if err := applyCounts(tx, unit, counterId, counts); err != nil {
			return err
		}

		counted := 0
		for i := range unit.Lines {
			line := &unit.Lines[i]

			threshold, tier, err := ResolveThreshold(tx, businessId, line.MaterialId, unit.ContractorId)
			if err != nil {
				return err
			}

			updates := map[string]interface{}{
				"ThresholdPct": threshold,
				"Tier":         tier,
				"IsAnomaly":    false,
				"Severity":     models.SeverityNone,
			}
			if line.ActualQty != nil {
				counted++
				v := ComputeVariance(line.ExpectedQty, *line.ActualQty)
				isAnomaly, severity := Classify(v, threshold, cuts)
				updates["IsAnomaly"] = isAnomaly
				updates["Severity"] = severity
			}
			if err := tx.Model(&models.CountLine{}).Where("id = ?", line.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		if counted == 0 {
			return fmt.Errorf("%w: at least one line must be counted before submit", utils.ErrValidation)
		}

		if err := CheckTransition(unit.Status, models.UnitStatusReview); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&models.ReconciliationUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]interface{}{
				"Status":      models.UnitStatusReview,
				"CounterId":   &counterId,
				"SubmittedAt": &now,
			}).Error; err != nil {
			return err
		}
		return models.SaveHistoryAction(tx, unit.ID, "reconciliation_units", "SUBMIT",
			fmt.Sprintf("%s submitted with %d counted lines.", unit.UnitNumber, counted))
	})
	if err != nil {
		config.LogError(logger, "countWorkflow.go", "SubmitCounts", "submitting counts", unitId, err)
		return nil, err
	}

	return models.GetReconciliationUnit(ctx, unitId)
}

// CancelUnit abandons a non-terminal unit. No ledger effect, no re-open.
func CancelUnit(ctx context.Context, unitId int, reason string) (*models.ReconciliationUnit, error) {
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
		if err := CheckTransition(unit.Status, models.UnitStatusCancelled); err != nil {
			return err
		}
		if err := tx.Model(&models.ReconciliationUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]interface{}{
				"Status":       models.UnitStatusCancelled,
				"CancelReason": reason,
			}).Error; err != nil {
			return err
		}
		return models.SaveHistoryAction(tx, unit.ID, "reconciliation_units", "CANCEL",
			fmt.Sprintf("%s cancelled.", unit.UnitNumber))
	})
	if err != nil {
		config.LogError(logger, "countWorkflow.go", "CancelUnit", "cancelling unit", unitId, err)
		return nil, err
	}

	return models.GetReconciliationUnit(ctx, unitId)
}
