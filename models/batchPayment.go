package models

import (
	"slices"
	"time"

	"gorm.io/gorm"
)

// BatchPayment groups payments of one journal and direction deposited or paid as a single bank movement.
type BatchPayment struct {
	ID         int               `gorm:"primary_key" json:"id"`
	BusinessId string            `gorm:"index;not null" json:"business_id"`
	Name       string            `gorm:"size:255;not null" json:"name"`
	Date       time.Time         `gorm:"not null" json:"date"`
	State      BatchPaymentState `gorm:"size:20;not null;default:'draft';index" json:"state"`
	BatchType  PaymentType       `gorm:"size:10;not null" json:"batch_type"`
	JournalId  int               `gorm:"index;not null" json:"journal_id"`
	CurrencyId int               `gorm:"not null" json:"currency_id"`
	Payments   []Payment         `gorm:"foreignKey:BatchPaymentId" json:"payments,omitempty"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidPaymentStates are the member states a bank statement may settle.
func (b BatchPayment) ValidPaymentStates() []PaymentState {
	return []PaymentState{PaymentStateInProcess}
}

// ValidPayments keeps members in a valid state, ordered by id.
func (b BatchPayment) ValidPayments() []Payment {
	valid := b.ValidPaymentStates()
	var out []Payment
	for _, p := range b.Payments {
		if slices.Contains(valid, p.State) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, c Payment) int { return a.ID - c.ID })
	return out
}

// GetBatchPayments loads batches with their members. Missing ids are silently skipped.
func GetBatchPayments(tx *gorm.DB, ids []int) ([]BatchPayment, error) {
	var batches []BatchPayment
	if len(ids) == 0 {
		return batches, nil
	}
	err := tx.Preload("Payments", func(db *gorm.DB) *gorm.DB {
		return db.Order("payments.id ASC")
	}).Where("id IN ?", ids).Order("id ASC").Find(&batches).Error
	return batches, err
}
