package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

type Material struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	Name          string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku           string    `gorm:"size:100" json:"sku"`
	UnitOfMeasure string    `gorm:"size:20;not null" json:"unit_of_measure" binding:"required"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterial struct {
	Name          string `json:"name" binding:"required"`
	Sku           string `json:"sku"`
	UnitOfMeasure string `json:"unit_of_measure" binding:"required"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewMaterial) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Material](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if len(input.Sku) > 0 {
		if err := utils.ValidateUnique[Material](ctx, businessId, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateMaterial(ctx context.Context, input *NewMaterial) (*Material, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	material := Material{
		BusinessId:    businessId,
		Name:          input.Name,
		Sku:           input.Sku,
		UnitOfMeasure: input.UnitOfMeasure,
		IsActive:      utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		return nil, err
	}

	return &material, nil
}

func UpdateMaterial(ctx context.Context, id int, input *NewMaterial) (*Material, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	material, err := utils.FetchModel[Material](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&material).Updates(map[string]interface{}{
		"Name":          input.Name,
		"Sku":           input.Sku,
		"UnitOfMeasure": input.UnitOfMeasure,
	}).Error; err != nil {
		return nil, err
	}

	return material, nil
}

func DeleteMaterial(ctx context.Context, id int) (*Material, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	material, err := utils.FetchModel[Material](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// material with recorded stock cannot be removed
	var count int64
	if err := db.WithContext(ctx).Model(&StockBalance{}).
		Where("business_id = ? AND material_id = ? AND qty <> 0", businessId, id).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("material has stock on hand")
	}

	if err = db.WithContext(ctx).Delete(&material).Error; err != nil {
		return nil, err
	}
	return material, nil
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Material](ctx, businessId, id)
}

func ListMaterial(ctx context.Context, name *string) ([]*Material, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Material

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
