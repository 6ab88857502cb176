package models

import (
	"fmt"

	"gorm.io/gorm"
)

func (c *Contractor) AfterCreate(tx *gorm.DB) (err error) {
	return SaveHistoryCreate(tx, c.ID, c, fmt.Sprintf("Contractor %s created.", c.Name))
}

func (c *Contractor) BeforeUpdate(tx *gorm.DB) (err error) {
	return SaveHistoryUpdate(tx, c.ID, c, "Contractor updated.")
}

func (c *Contractor) AfterDelete(tx *gorm.DB) (err error) {
	return SaveHistoryDelete(tx, c.ID, c, fmt.Sprintf("Contractor %s deleted.", c.Name))
}

func (m *Material) AfterCreate(tx *gorm.DB) (err error) {
	return SaveHistoryCreate(tx, m.ID, m, fmt.Sprintf("Material %s created.", m.Name))
}

func (m *Material) BeforeUpdate(tx *gorm.DB) (err error) {
	return SaveHistoryUpdate(tx, m.ID, m, "Material updated.")
}

func (m *Material) AfterDelete(tx *gorm.DB) (err error) {
	return SaveHistoryDelete(tx, m.ID, m, fmt.Sprintf("Material %s deleted.", m.Name))
}

func (w *Warehouse) AfterCreate(tx *gorm.DB) (err error) {
	return SaveHistoryCreate(tx, w.ID, w, fmt.Sprintf("Warehouse %s created.", w.Name))
}

func (w *Warehouse) BeforeUpdate(tx *gorm.DB) (err error) {
	return SaveHistoryUpdate(tx, w.ID, w, "Warehouse updated.")
}

func (w *Warehouse) AfterDelete(tx *gorm.DB) (err error) {
	return SaveHistoryDelete(tx, w.ID, w, fmt.Sprintf("Warehouse %s deleted.", w.Name))
}

func (t *VarianceThreshold) AfterCreate(tx *gorm.DB) (err error) {
	return SaveHistoryCreate(tx, t.ID, t, fmt.Sprintf("Variance threshold %v%% created.", t.Percentage))
}

func (t *VarianceThreshold) BeforeUpdate(tx *gorm.DB) (err error) {
	return SaveHistoryUpdate(tx, t.ID, t, "Variance threshold updated.")
}

func (t *VarianceThreshold) AfterDelete(tx *gorm.DB) (err error) {
	return SaveHistoryDelete(tx, t.ID, t, "Variance threshold deleted.")
}

func (u *ReconciliationUnit) AfterCreate(tx *gorm.DB) (err error) {
	return SaveHistoryCreate(tx, u.ID, u, fmt.Sprintf("%s %s opened.", u.Kind, u.UnitNumber))
}
