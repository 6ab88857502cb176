package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
	"github.com/shopspring/decimal"
)

// VarianceThreshold is a tolerance override. ContractorId nil means
// "material default". At most one active row per (material, contractor)
// scope; the cascade floor (system default) lives in config, not here.
type VarianceThreshold struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;uniqueIndex:idx_threshold_scope;not null" json:"business_id"`
	MaterialId   int             `gorm:"uniqueIndex:idx_threshold_scope;not null" json:"material_id"`
	ContractorId *int            `gorm:"uniqueIndex:idx_threshold_scope" json:"contractor_id"`
	Percentage   decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"percentage"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedBy    int             `gorm:"not null" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVarianceThreshold struct {
	MaterialId   int             `json:"material_id" binding:"required"`
	ContractorId *int            `json:"contractor_id"`
	Percentage   decimal.Decimal `json:"percentage" binding:"required"`
	Notes        string          `json:"notes"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewVarianceThreshold) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateResourceId[Material](ctx, businessId, input.MaterialId); err != nil {
		return utils.ValidationError("material not found")
	}
	if input.ContractorId != nil {
		if err := utils.ValidateResourceId[Contractor](ctx, businessId, *input.ContractorId); err != nil {
			return utils.ValidationError("contractor not found")
		}
	}
	if input.Percentage.IsNegative() {
		return utils.ValidationError("percentage must not be negative")
	}

	// scope uniqueness; the unique index is the backstop for races
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&VarianceThreshold{}).
		Where("business_id = ? AND material_id = ?", businessId, input.MaterialId)
	if input.ContractorId == nil {
		dbCtx = dbCtx.Where("contractor_id IS NULL")
	} else {
		dbCtx = dbCtx.Where("contractor_id = ?", *input.ContractorId)
	}
	if id != 0 {
		dbCtx = dbCtx.Where("NOT id = ?", id)
	}
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: material_id=%d", utils.ErrThresholdConflict, input.MaterialId)
	}
	return nil
}

func CreateVarianceThreshold(ctx context.Context, input *NewVarianceThreshold) (*VarianceThreshold, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	threshold := VarianceThreshold{
		BusinessId:   businessId,
		MaterialId:   input.MaterialId,
		ContractorId: input.ContractorId,
		Percentage:   input.Percentage,
		Notes:        input.Notes,
		CreatedBy:    userId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&threshold).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: material_id=%d", utils.ErrThresholdConflict, input.MaterialId)
		}
		return nil, err
	}
	return &threshold, nil
}

func UpdateVarianceThreshold(ctx context.Context, id int, input *NewVarianceThreshold) (*VarianceThreshold, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	threshold, err := utils.FetchModel[VarianceThreshold](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&threshold).Updates(map[string]interface{}{
		"MaterialId":   input.MaterialId,
		"ContractorId": input.ContractorId,
		"Percentage":   input.Percentage,
		"Notes":        input.Notes,
	}).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: material_id=%d", utils.ErrThresholdConflict, input.MaterialId)
		}
		return nil, err
	}

	return threshold, nil
}

func DeleteVarianceThreshold(ctx context.Context, id int) (*VarianceThreshold, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	threshold, err := utils.FetchModel[VarianceThreshold](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err = db.WithContext(ctx).Delete(&threshold).Error; err != nil {
		return nil, err
	}
	return threshold, nil
}

func GetVarianceThreshold(ctx context.Context, id int) (*VarianceThreshold, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[VarianceThreshold](ctx, businessId, id)
}

func ListVarianceThreshold(ctx context.Context, materialId *int, contractorId *int) ([]*VarianceThreshold, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if materialId != nil && *materialId > 0 {
		dbCtx = dbCtx.Where("material_id = ?", *materialId)
	}
	if contractorId != nil && *contractorId > 0 {
		dbCtx = dbCtx.Where("contractor_id = ?", *contractorId)
	}
	var results []*VarianceThreshold
	if err := dbCtx.Order("material_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
