package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResolveThreshold walks the tolerance cascade for one (material, contractor)
// pair: contractor-specific row, then material default row, then the config
// floor. First match wins. Runs on the caller's *gorm.DB so submit reads the
// thresholds that are visible inside its own transaction.
func ResolveThreshold(tx *gorm.DB, businessId string, materialId int, contractorId int) (decimal.Decimal, models.ThresholdTier, error) {
	var threshold models.VarianceThreshold

	err := tx.Where("business_id = ? AND material_id = ? AND contractor_id = ?",
		businessId, materialId, contractorId).
		First(&threshold).Error
	if err == nil {
		return threshold.Percentage, models.ThresholdTierContractor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, "", err
	}

	err = tx.Where("business_id = ? AND material_id = ? AND contractor_id IS NULL",
		businessId, materialId).
		First(&threshold).Error
	if err == nil {
		return threshold.Percentage, models.ThresholdTierMaterial, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, "", err
	}

	return config.DefaultVarianceThreshold(), models.ThresholdTierDefault, nil
}
