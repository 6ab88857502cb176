package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireContractorLock serializes ledger application per contractor across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the resolve transaction.
func AcquireContractorLock(tx *gorm.DB, businessId string, contractorId int) error {
	lockName := fmt.Sprintf("resolve:%s:%d", businessId, contractorId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire resolve lock for contractor_id=%d", contractorId)
	}
	return nil
}

func ReleaseContractorLock(tx *gorm.DB, businessId string, contractorId int) {
	lockName := fmt.Sprintf("resolve:%s:%d", businessId, contractorId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
