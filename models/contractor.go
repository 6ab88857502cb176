package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

// Contractor is a party that physically holds company stock and is the
// subject of reconciliation units. A contractor must have an active holding
// warehouse before a check can be opened against it.
type Contractor struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	Name          string    `gorm:"size:100;not null" json:"name" binding:"required"`
	ContactPerson string    `gorm:"size:100" json:"contact_person"`
	Phone         string    `gorm:"size:20" json:"phone"`
	Mobile        string    `gorm:"size:20" json:"mobile"`
	Email         string    `gorm:"size:100" json:"email"`
	Address       string    `gorm:"type:text" json:"address"`
	WarehouseId   int       `gorm:"index" json:"warehouse_id"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewContractor struct {
	Name          string `json:"name" binding:"required"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Mobile        string `json:"mobile"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	WarehouseId   int    `json:"warehouse_id"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewContractor) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Contractor](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// holding warehouse must belong to this business when set
	if input.WarehouseId != 0 {
		if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
			return errors.New("warehouse not found")
		}
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return err
		}
	}
	// mobile
	if len(strings.TrimSpace(input.Mobile)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return err
		}
	}
	if len(strings.TrimSpace(input.Email)) > 0 && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	return nil
}

func CreateContractor(ctx context.Context, input *NewContractor) (*Contractor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	contractor := Contractor{
		BusinessId:    businessId,
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Phone:         input.Phone,
		Mobile:        input.Mobile,
		Email:         input.Email,
		Address:       input.Address,
		WarehouseId:   input.WarehouseId,
		IsActive:      utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&contractor).Error
	if err != nil {
		return nil, err
	}
	return &contractor, nil
}

func UpdateContractor(ctx context.Context, id int, input *NewContractor) (*Contractor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	contractor, err := utils.FetchModel[Contractor](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&contractor).Updates(map[string]interface{}{
		"Name":          input.Name,
		"ContactPerson": input.ContactPerson,
		"Phone":         input.Phone,
		"Mobile":        input.Mobile,
		"Email":         input.Email,
		"Address":       input.Address,
		"WarehouseId":   input.WarehouseId,
	}).Error
	if err != nil {
		return nil, err
	}

	return contractor, nil
}

func DeleteContractor(ctx context.Context, id int) (*Contractor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	contractor, err := utils.FetchModel[Contractor](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// a contractor with open units or stock on hand cannot be removed
	var count int64
	if err := db.WithContext(ctx).Model(&ReconciliationUnit{}).
		Where("business_id = ? AND contractor_id = ? AND status NOT IN ?", businessId, id,
			[]UnitStatus{UnitStatusResolved, UnitStatusCancelled}).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("contractor has open reconciliation units")
	}
	if err := db.WithContext(ctx).Model(&StockBalance{}).
		Where("business_id = ? AND contractor_id = ? AND qty <> 0", businessId, id).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("contractor has stock on hand")
	}

	// db action
	err = db.WithContext(ctx).Delete(&contractor).Error
	if err != nil {
		return nil, err
	}
	return contractor, nil
}

func GetContractor(ctx context.Context, id int) (*Contractor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Contractor](ctx, businessId, id)
}

func ListContractor(ctx context.Context, name *string) ([]*Contractor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Contractor

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// HasHoldingLocation reports whether the contractor has an active warehouse
// eligible to hold stock. Opening a unit requires this.
func (contractor *Contractor) HasHoldingLocation(ctx context.Context) (bool, error) {
	if contractor.WarehouseId == 0 {
		return false, nil
	}
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Warehouse{}).
		Where("business_id = ? AND id = ? AND is_active = 1", contractor.BusinessId, contractor.WarehouseId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
