package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconciliationUnit is a physical-count exercise against one contractor:
// a routine check, a contractor self-report, or an audit. Units are never
// hard-deleted; cancellation is a terminal status.
type ReconciliationUnit struct {
	ID           int         `gorm:"primary_key" json:"id"`
	BusinessId   string      `gorm:"index;not null" json:"business_id"`
	UnitNumber   string      `gorm:"size:20;not null;index" json:"unit_number"`
	Kind         UnitKind    `gorm:"size:20;not null;index" json:"kind"`
	Status       UnitStatus  `gorm:"size:20;not null;index" json:"status"`
	ContractorId int         `gorm:"index;not null" json:"contractor_id"`
	Contractor   *Contractor `gorm:"foreignKey:ContractorId" json:"contractor,omitempty"`
	Blind        bool        `gorm:"not null;default:false" json:"blind"`
	CountDate    time.Time   `json:"count_date"`
	Notes        string      `gorm:"type:text" json:"notes"`
	OpenedBy     int         `gorm:"not null" json:"opened_by"`
	CounterId    *int        `json:"counter_id"`
	SubmittedAt  *time.Time  `json:"submitted_at"`
	ReviewerId   *int        `json:"reviewer_id"`
	ResolvedBy   *int        `json:"resolved_by"`
	ResolvedAt   *time.Time  `json:"resolved_at"`
	CancelReason string      `gorm:"type:text" json:"cancel_reason"`
	Lines        []CountLine `gorm:"foreignKey:UnitId" json:"lines,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountLine is one material on a unit. ExpectedQty is frozen at snapshot
// time; ActualQty stays NULL until a count is recorded. Variance is always
// recomputed from these two, never stored.
type CountLine struct {
	ID              int              `gorm:"primary_key" json:"id"`
	BusinessId      string           `gorm:"index;not null" json:"business_id"`
	UnitId          int              `gorm:"index;not null" json:"unit_id"`
	MaterialId      int              `gorm:"index;not null" json:"material_id"`
	Material        *Material        `gorm:"foreignKey:MaterialId" json:"material,omitempty"`
	UnitOfMeasure   string           `gorm:"size:20" json:"unit_of_measure"`
	ExpectedQty     decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"expected_qty"`
	ActualQty       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"actual_qty"`
	CountedBy       *int             `json:"counted_by"`
	CountedAt       *time.Time       `json:"counted_at"`
	ThresholdPct    decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"threshold_pct"`
	Tier            ThresholdTier    `gorm:"size:20" json:"tier"`
	IsAnomaly       bool             `gorm:"not null;default:false" json:"is_anomaly"`
	Severity        Severity         `gorm:"size:20;default:'None'" json:"severity"`
	Resolution      *LineResolution  `gorm:"size:20" json:"resolution"`
	ResolutionNotes string           `gorm:"type:text" json:"resolution_notes"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// SnapshotLines freezes the expected quantities for a new unit. With no
// explicit material set, one line is created per material the contractor
// currently holds. Audits may pass a fixed set; materials the contractor
// does not hold snapshot at expected zero.
func SnapshotLines(tx *gorm.DB, businessId string, contractorId int, materialIds []int) ([]CountLine, error) {
	lines := make([]CountLine, 0)

	if len(materialIds) == 0 {
		holdings, err := ListHoldings(tx, businessId, contractorId)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			var material Material
			if err := tx.Where("business_id = ?", businessId).First(&material, h.MaterialId).Error; err != nil {
				return nil, err
			}
			lines = append(lines, CountLine{
				BusinessId:    businessId,
				MaterialId:    h.MaterialId,
				UnitOfMeasure: material.UnitOfMeasure,
				ExpectedQty:   h.Qty,
				Severity:      SeverityNone,
			})
		}
		return lines, nil
	}

	seen := make(map[int]bool)
	for _, materialId := range materialIds {
		if seen[materialId] {
			continue
		}
		seen[materialId] = true

		var material Material
		if err := tx.Where("business_id = ?", businessId).First(&material, materialId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.ValidationError("material %d not found", materialId)
			}
			return nil, err
		}
		qty, _, err := ReadQuantity(tx, businessId, contractorId, materialId)
		if err != nil {
			return nil, err
		}
		lines = append(lines, CountLine{
			BusinessId:    businessId,
			MaterialId:    materialId,
			UnitOfMeasure: material.UnitOfMeasure,
			ExpectedQty:   qty,
			Severity:      SeverityNone,
		})
	}
	return lines, nil
}

func GetReconciliationUnit(ctx context.Context, id int) (*ReconciliationUnit, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ReconciliationUnit](ctx, businessId, id, "Contractor", "Lines", "Lines.Material")
}

// GetUnitForUpdate row-locks the unit inside the caller's transaction so
// concurrent transitions on the same unit serialize.
func GetUnitForUpdate(tx *gorm.DB, businessId string, id int) (*ReconciliationUnit, error) {
	var unit ReconciliationUnit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&unit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := tx.Where("unit_id = ?", id).Order("id").Find(&unit.Lines).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

type UnitFilter struct {
	Kind         *UnitKind
	Status       *UnitStatus
	ContractorId *int
}

func ListReconciliationUnit(ctx context.Context, filter UnitFilter) ([]*ReconciliationUnit, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Contractor").Where("business_id = ?", businessId)
	if filter.Kind != nil {
		dbCtx = dbCtx.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.ContractorId != nil && *filter.ContractorId > 0 {
		dbCtx = dbCtx.Where("contractor_id = ?", *filter.ContractorId)
	}

	var results []*ReconciliationUnit
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
