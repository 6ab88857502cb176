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

// StockBalance is the inventory ledger of record: the quantity a contractor
// is expected to hold per material. Writes are conditional on Version so two
// concurrent resolutions cannot both apply against a stale read.
type StockBalance struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"uniqueIndex:idx_balance_scope;not null" json:"business_id"`
	ContractorId int             `gorm:"uniqueIndex:idx_balance_scope;not null" json:"contractor_id"`
	MaterialId   int             `gorm:"uniqueIndex:idx_balance_scope;not null" json:"material_id"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Version      int             `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReadQuantity returns the current ledger quantity and version for a
// (contractor, material) pair. A missing row reads as zero at version 0.
func ReadQuantity(tx *gorm.DB, businessId string, contractorId int, materialId int) (decimal.Decimal, int, error) {
	var balance StockBalance
	err := tx.Where("business_id = ? AND contractor_id = ? AND material_id = ?",
		businessId, contractorId, materialId).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, 0, nil
		}
		return decimal.Zero, 0, err
	}
	return balance.Qty, balance.Version, nil
}

// WriteQuantity sets the ledger quantity, conditional on expectedVersion.
// Returns ErrLedgerConflict when another writer got there first.
func WriteQuantity(tx *gorm.DB, businessId string, contractorId int, materialId int, qty decimal.Decimal, expectedVersion int) error {
	if expectedVersion == 0 {
		// First write for this scope. A duplicate-key failure means a
		// concurrent writer created the row: that is a conflict, not an error.
		balance := StockBalance{
			BusinessId:   businessId,
			ContractorId: contractorId,
			MaterialId:   materialId,
			Qty:          qty,
			Version:      1,
		}
		if err := tx.Create(&balance).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return utils.ErrLedgerConflict
			}
			return err
		}
		return nil
	}

	result := tx.Model(&StockBalance{}).
		Where("business_id = ? AND contractor_id = ? AND material_id = ? AND version = ?",
			businessId, contractorId, materialId, expectedVersion).
		Updates(map[string]interface{}{
			"qty":     qty,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrLedgerConflict
	}
	return nil
}

// ListHoldings returns the materials a contractor currently holds (positive
// quantities). The snapshot builder uses this as the default check scope.
func ListHoldings(tx *gorm.DB, businessId string, contractorId int) ([]*StockBalance, error) {
	var balances []*StockBalance
	err := tx.Where("business_id = ? AND contractor_id = ? AND qty > 0", businessId, contractorId).
		Order("material_id").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// SetOpeningQuantity seeds or replaces a ledger balance outside the
// reconciliation flow (goods receipt, opening stock import).
func SetOpeningQuantity(ctx context.Context, contractorId int, materialId int, qty decimal.Decimal) (*StockBalance, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Contractor](ctx, businessId, contractorId); err != nil {
		return nil, errors.New("contractor not found")
	}
	if err := utils.ValidateResourceId[Material](ctx, businessId, materialId); err != nil {
		return nil, errors.New("material not found")
	}

	db := config.GetDB()
	var balance StockBalance
	err := db.WithContext(ctx).
		Where("business_id = ? AND contractor_id = ? AND material_id = ?", businessId, contractorId, materialId).
		First(&balance).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		balance = StockBalance{
			BusinessId:   businessId,
			ContractorId: contractorId,
			MaterialId:   materialId,
			Qty:          qty,
			Version:      1,
		}
		if err := db.WithContext(ctx).Create(&balance).Error; err != nil {
			return nil, err
		}
		return &balance, nil
	}

	if err := db.WithContext(ctx).Model(&balance).Updates(map[string]interface{}{
		"qty":     qty,
		"version": gorm.Expr("version + 1"),
	}).Error; err != nil {
		return nil, err
	}
	balance.Qty = qty
	balance.Version++
	return &balance, nil
}

func ListStockBalance(ctx context.Context, contractorId *int) ([]*StockBalance, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if contractorId != nil && *contractorId > 0 {
		dbCtx = dbCtx.Where("contractor_id = ?", *contractorId)
	}
	var results []*StockBalance
	if err := dbCtx.Order("contractor_id, material_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
