package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSeries hands out document numbers (CHK-000001, AUD-000001) per
// business and prefix. Rows are created lazily on first use.
type NumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;uniqueIndex:idx_series_scope;not null" json:"business_id"`
	Prefix     string    `gorm:"uniqueIndex:idx_series_scope;size:10;not null" json:"prefix"`
	NextNumber int       `gorm:"not null;default:1" json:"next_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextDocumentNumber reserves and formats the next number for the prefix.
// Must run inside the caller's transaction; the row lock serializes
// concurrent openers so numbers never repeat.
func NextDocumentNumber(tx *gorm.DB, businessId string, prefix string) (string, error) {
	var series NumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND prefix = ?", businessId, prefix).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = NumberSeries{BusinessId: businessId, Prefix: prefix, NextNumber: 1}
		if err := tx.Create(&series).Error; err != nil {
			if isDuplicateKeyErr(err) {
				// lost the creation race; re-read under lock
				if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("business_id = ? AND prefix = ?", businessId, prefix).
					First(&series).Error; err != nil {
					return "", err
				}
			} else {
				return "", err
			}
		}
	} else if err != nil {
		return "", err
	}

	number := series.NextNumber
	if err := tx.Model(&NumberSeries{}).Where("id = ?", series.ID).
		Update("next_number", number+1).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, number), nil
}
