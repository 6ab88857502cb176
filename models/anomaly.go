package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Anomaly is a worklist entry for a count line whose variance breached
// its threshold. One anomaly per (unit, line); re-resolving a unit with
// the same breach refreshes the existing row instead of adding another.
type Anomaly struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	UnitId       int             `gorm:"uniqueIndex:idx_anomaly_line;not null" json:"unit_id"`
	LineId       int             `gorm:"uniqueIndex:idx_anomaly_line;not null" json:"line_id"`
	ContractorId int             `gorm:"index;not null" json:"contractor_id"`
	Contractor   *Contractor     `gorm:"foreignKey:ContractorId" json:"contractor,omitempty"`
	MaterialId   int             `gorm:"index;not null" json:"material_id"`
	Material     *Material       `gorm:"foreignKey:MaterialId" json:"material,omitempty"`
	ExpectedQty  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"expected_qty"`
	ActualQty    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"actual_qty"`
	VarianceQty  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"variance_qty"`
	VariancePct  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"variance_pct"`
	Severity     Severity        `gorm:"size:20;not null;index" json:"severity"`
	ThresholdPct decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"threshold_pct"`
	Tier         ThresholdTier   `gorm:"size:20;not null" json:"tier"`
	Resolved     bool            `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedBy   *int            `json:"resolved_by"`
	ResolvedAt   *time.Time      `json:"resolved_at"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertAnomaly writes an open anomaly inside the resolve transaction.
// A retried resolve hits the unique index and refreshes the row so the
// worklist never gets duplicates for the same line.
func UpsertAnomaly(tx *gorm.DB, anomaly *Anomaly) error {
	anomaly.Resolved = false
	anomaly.ResolvedBy = nil
	anomaly.ResolvedAt = nil

	err := tx.Create(anomaly).Error
	if err == nil {
		return nil
	}
	if !isDuplicateKeyErr(err) {
		return err
	}

	var existing Anomaly
	if err := tx.Where("unit_id = ? AND line_id = ?", anomaly.UnitId, anomaly.LineId).
		First(&existing).Error; err != nil {
		return err
	}
	anomaly.ID = existing.ID
	return tx.Model(&Anomaly{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"ExpectedQty":  anomaly.ExpectedQty,
		"ActualQty":    anomaly.ActualQty,
		"VarianceQty":  anomaly.VarianceQty,
		"VariancePct":  anomaly.VariancePct,
		"Severity":     anomaly.Severity,
		"ThresholdPct": anomaly.ThresholdPct,
		"Tier":         anomaly.Tier,
	}).Error
}

type AnomalyFilter struct {
	ContractorId *int
	UnitId       *int
	Severity     *Severity
	Resolved     *bool
}

func ListAnomaly(ctx context.Context, filter AnomalyFilter) ([]*Anomaly, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Preload("Contractor").Preload("Material").
		Where("business_id = ?", businessId)
	if filter.ContractorId != nil && *filter.ContractorId > 0 {
		dbCtx = dbCtx.Where("contractor_id = ?", *filter.ContractorId)
	}
	if filter.UnitId != nil && *filter.UnitId > 0 {
		dbCtx = dbCtx.Where("unit_id = ?", *filter.UnitId)
	}
	if filter.Severity != nil {
		dbCtx = dbCtx.Where("severity = ?", *filter.Severity)
	}
	if filter.Resolved != nil {
		dbCtx = dbCtx.Where("resolved = ?", *filter.Resolved)
	}

	var results []*Anomaly
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetAnomaly(ctx context.Context, id int) (*Anomaly, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Anomaly](ctx, businessId, id, "Contractor", "Material")
}

// ResolveAnomaly closes a worklist entry. Closing an already-closed
// anomaly is rejected so two investigators cannot both claim it.
func ResolveAnomaly(ctx context.Context, id int, notes string) (*Anomaly, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	anomaly, err := utils.FetchModel[Anomaly](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if anomaly.Resolved {
		return nil, utils.ValidationError("anomaly is already resolved")
	}

	now := time.Now()
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Anomaly{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"Resolved":   true,
			"ResolvedBy": &userId,
			"ResolvedAt": &now,
			"Notes":      notes,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ValidationError("anomaly is already resolved")
	}

	return utils.FetchModel[Anomaly](ctx, businessId, id, "Contractor", "Material")
}
