package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrPostingLockBusy = errors.New("posting lock busy")

const postingLockWaitSeconds = 30

func postingLockName(businessId string, journalId int) string {
	return fmt.Sprintf("bankrec:%s:%d", businessId, journalId)
}

// AcquireJournalPostingLock serializes statement validation per bank journal across instances
// using MySQL advisory locks. GET_LOCK is connection-scoped: call it on the transaction that posts,
// and release on the same one.
func AcquireJournalPostingLock(tx *gorm.DB, logger *logrus.Logger, businessId string, journalId int) (release func(), err error) {
	name := postingLockName(businessId, journalId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, ?)", name, postingLockWaitSeconds).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		return nil, fmt.Errorf("%w: business_id=%s journal_id=%d", ErrPostingLockBusy, businessId, journalId)
	}
	return func() { releasePostingLock(tx, logger, name) }, nil
}

// releasePostingLock logs a failed release. MySQL drops the lock with the connection in any case.
func releasePostingLock(tx *gorm.DB, logger *logrus.Logger, name string) {
	var released int
	err := tx.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&released).Error
	if err == nil && released != 1 {
		err = fmt.Errorf("posting lock %s was not held by this connection", name)
	}
	if err != nil && logger != nil {
		config.LogError(logger, "postingLock.go", "releasePostingLock", name, nil, err)
	}
}
