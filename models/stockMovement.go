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

// StockMovement is the append-only record of what a resolved line did to the
// ledger: an Adjustment (accept) or a Loss/Gain event (keep_system). The
// unique (unit, line) key is what makes the per-line ledger write idempotent:
// a retried resolve sees the existing row and skips re-applying.
type StockMovement struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	UnitId       int             `gorm:"uniqueIndex:idx_movement_unit_line;not null" json:"unit_id"`
	LineId       int             `gorm:"uniqueIndex:idx_movement_unit_line;not null" json:"line_id"`
	ContractorId int             `gorm:"index;not null" json:"contractor_id"`
	MaterialId   int             `gorm:"index;not null" json:"material_id"`
	MovementType MovementType    `gorm:"type:enum('Adjustment','Loss','Gain');not null" json:"movement_type"`
	QtyBefore    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_before"`
	QtyAfter     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_after"`
	VarianceQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_qty"`
	AppliedBy    int             `gorm:"not null" json:"applied_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// RecordMovement inserts the movement row for an applied line. Returns
// (false, nil) when the (unit, line) pair was already applied.
func RecordMovement(tx *gorm.DB, movement *StockMovement) (applied bool, err error) {
	if err := tx.Create(movement).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func ListStockMovement(ctx context.Context, contractorId *int, materialId *int) ([]*StockMovement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if contractorId != nil && *contractorId > 0 {
		dbCtx = dbCtx.Where("contractor_id = ?", *contractorId)
	}
	if materialId != nil && *materialId > 0 {
		dbCtx = dbCtx.Where("material_id = ?", *materialId)
	}
	var results []*StockMovement
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
